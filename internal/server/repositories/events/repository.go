package events

import (
	"context"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// Repository is the append-only sync audit log.
type Repository interface {
	Append(ctx context.Context, e *models.SyncEvent) error
	// AppendExternal appends an event carrying an external webhook event
	// id. It reports false when an event with the same external id was
	// already recorded, which callers use as the replay guard.
	AppendExternal(ctx context.Context, e *models.SyncEvent) (bool, error)
	// SeenExternal reports whether an event with the given external id was
	// already recorded.
	SeenExternal(ctx context.Context, externalEventID string) (bool, error)
	RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncEvent, error)
}

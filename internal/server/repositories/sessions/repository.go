package sessions

import (
	"context"
	"time"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// Repository persists chunked upload sessions and their received-chunk set.
// Durable rows (rather than an in-process map) keep partially received
// uploads usable across restarts and make expiry auditable.
type Repository interface {
	Create(ctx context.Context, s *models.ChunkedUploadSession) error
	Get(ctx context.Context, id string) (*models.ChunkedUploadSession, error)
	// UpsertChunk records receipt of one chunk. A duplicate index updates
	// the existing row in place.
	UpsertChunk(ctx context.Context, sessionID string, index int, size int64) error
	// ChunkSizes returns the byte size of every received chunk by index.
	ChunkSizes(ctx context.Context, sessionID string) (map[int]int64, error)
	CountChunks(ctx context.Context, sessionID string) (int, error)
	MarkAssembled(ctx context.Context, sessionID string) error
	// DeleteExpired removes sessions past their expiry and returns their
	// ids so callers can reclaim staged chunk files.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
	Delete(ctx context.Context, id string) error
}

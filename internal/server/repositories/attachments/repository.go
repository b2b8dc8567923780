package attachments

import (
	"context"
	"time"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// Repository persists attachment metadata. Soft-deleted rows are invisible to
// every lookup except PurgeDeleted.
type Repository interface {
	Create(ctx context.Context, rec *models.AttachmentRecord) error
	GetByID(ctx context.Context, id string) (*models.AttachmentRecord, error)
	// FindByGUID matches either the local id or the remote GUID.
	FindByGUID(ctx context.Context, guid string) (*models.AttachmentRecord, error)
	// FindByHashAndWorkItem is the dedup lookup.
	FindByHashAndWorkItem(ctx context.Context, hash string, workItemID int64) (*models.AttachmentRecord, error)
	// FindByHash returns any live record with the given content hash.
	FindByHash(ctx context.Context, hash string) (*models.AttachmentRecord, error)
	ListByWorkItem(ctx context.Context, workItemID int64) ([]*models.AttachmentRecord, error)
	// UpsertRemote inserts a remote-pulled record or refreshes the existing
	// row for the same (hash, work item).
	UpsertRemote(ctx context.Context, rec *models.AttachmentRecord) error
	MarkSynced(ctx context.Context, id string, remoteGUID string) error
	MarkFailed(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, guid string) error
	PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error)
	// ReferencedHashes lists content hashes still referenced by any row,
	// deleted or not, so the content sweep never removes bytes a record
	// may still need.
	ReferencedHashes(ctx context.Context) ([]string, error)
	Summary(ctx context.Context, workItemID int64) (*models.WorkItemSummary, error)
}

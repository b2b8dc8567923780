package jobs

import (
	"context"
	"time"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// Repository is the durable sync job queue. Jobs are claimed oldest-first;
// completed jobs are retained for audit.
type Repository interface {
	Enqueue(ctx context.Context, job *models.SyncJob) error
	// Claim atomically moves the oldest eligible QUEUED job to RUNNING and
	// increments its attempt count. A job is eligible when its
	// next_attempt_at has passed and no RUNNING job exists for the same
	// (work item, attachment) pair. Returns (nil, nil) when the queue is
	// empty.
	Claim(ctx context.Context) (*models.SyncJob, error)
	MarkDone(ctx context.Context, id string) error
	// Requeue returns a transiently failed job to QUEUED with a deferred
	// next attempt.
	Requeue(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	GetByID(ctx context.Context, id string) (*models.SyncJob, error)
	RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncJob, error)
}

package models

import "time"

// Sync job types.
const (
	JobPush       = "PUSH"
	JobPull       = "PULL"
	JobLink       = "LINK"
	JobFullResync = "FULL_RESYNC"
)

// Sync job statuses.
const (
	JobQueued  = "QUEUED"
	JobRunning = "RUNNING"
	JobDone    = "DONE"
	JobFailed  = "FAILED"
)

// SyncJob is one unit of asynchronous work against the remote tracker.
// Jobs are claimed oldest-first; Attempts increments on every claim and a job
// is marked FAILED terminally once the retry ceiling is reached. Completed
// jobs are retained for audit.
type SyncJob struct {
	ID         string
	Type       string
	WorkItemID int64
	// AttachmentID is the local attachment the job targets; nil for
	// work-item-scoped jobs (FULL_RESYNC, webhook-triggered PULL).
	AttachmentID *string
	// RemoteGUID carries the remote attachment id for targeted PULL jobs
	// created by reconciliation.
	RemoteGUID *string
	// LinkURL and Comment carry the payload of LINK jobs.
	LinkURL  string
	FileName string
	Comment  string

	Status    string
	Attempts  int
	LastError string
	// NextAttemptAt gates claiming; retries push it into the future with
	// exponential backoff.
	NextAttemptAt time.Time
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

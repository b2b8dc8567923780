package models

import "time"

// Sync event severities.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// SyncEvent is one append-only audit log entry scoped to a work item.
// Rows are immutable once written.
type SyncEvent struct {
	ID         int64
	WorkItemID int64
	Severity   string
	Message    string
	// ExternalEventID is the id of the inbound webhook event that produced
	// this entry. A unique index on it makes webhook processing idempotent
	// under replays.
	ExternalEventID *string
	CreatedAt       time.Time
}

// Package models defines server-side data models persisted in the database.
package models

import "time"

// Attachment origin values.
const (
	OriginLocalUpload = "local-upload"
	OriginRemotePull  = "remote-pull"
)

// Attachment sync status values.
const (
	StatusPending = "PENDING"
	StatusSynced  = "SYNCED"
	StatusFailed  = "FAILED"
)

// AttachmentRecord describes one attachment known to the system. The bytes
// themselves live in the content-addressable store, referenced by ContentHash.
//
// (ContentHash, WorkItemID) is the natural dedup key: repeated uploads of
// identical bytes for the same work item resolve to one record. RemoteGUID is
// set exactly when SyncStatus is SYNCED.
type AttachmentRecord struct {
	// ID is the local identifier (UUID).
	ID string
	// RemoteGUID is the attachment id assigned by the remote tracker,
	// nil until the attachment has been pushed and linked.
	RemoteGUID *string
	// WorkItemID is the remote work item this attachment belongs to.
	WorkItemID int64
	// FileName is the display name of the file.
	FileName string
	// SizeBytes is the byte length of the content.
	SizeBytes int64
	// ContentHash is the hex-encoded SHA-256 digest of the content.
	ContentHash string
	// Origin records which side the bytes came from first.
	Origin string
	// SyncStatus is PENDING, SYNCED or FAILED.
	SyncStatus string

	CreatedAt time.Time
	UpdatedAt time.Time
	// DeletedAt is the soft-delete timestamp; rows are purged only after
	// the retention window.
	DeletedAt *time.Time
}

// WorkItemSummary aggregates per-work-item attachment counts by sync status.
type WorkItemSummary struct {
	WorkItemID int64
	Pending    int
	Synced     int
	Failed     int
}

// Total returns the number of live attachments in the summary.
func (s *WorkItemSummary) Total() int {
	return s.Pending + s.Synced + s.Failed
}

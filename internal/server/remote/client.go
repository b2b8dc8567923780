// Package remote talks to the work-item tracker's REST surface. The rest of
// the service treats the tracker as a black box behind the Client interface;
// the Azure DevOps adapter is the only production implementation.
package remote

import "context"

// Attachment describes an attachment as the tracker reports it.
type Attachment struct {
	// GUID is the tracker-side attachment identifier.
	GUID string
	// URL is the canonical content URL, used when linking to a work item.
	URL      string
	FileName string
	// SizeBytes is the attached size the tracker reports, 0 when the
	// tracker omits it.
	SizeBytes int64
}

// Client is the remote attachment surface used by the sync worker and the
// orchestrator. Every call can fail with *common.UpstreamError; callers
// inspect Transient to decide whether to retry.
type Client interface {
	// Upload stores raw bytes on the tracker and returns the new
	// attachment's GUID and content URL. The tracker does not deduplicate.
	Upload(ctx context.Context, fileName string, data []byte) (Attachment, error)

	// Link attaches an already uploaded blob to a work item via its URL.
	Link(ctx context.Context, workItemID int64, url, fileName, comment string) error

	// List returns every attachment relation on the work item.
	List(ctx context.Context, workItemID int64) ([]Attachment, error)

	// Download fetches attachment content by GUID.
	Download(ctx context.Context, guid string) ([]byte, error)
}

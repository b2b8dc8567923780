package common

import "fmt"

// UpstreamError describes a failed call to the remote work-item tracker.
// Transient failures (network errors, timeouts, 5xx responses) are retried by
// the queue worker with backoff; permanent failures (4xx responses that mean
// the target no longer exists) are not.
type UpstreamError struct {
	// Op names the remote operation, e.g. "upload" or "link".
	Op string
	// StatusCode is the HTTP status of the remote response, 0 for
	// transport-level failures.
	StatusCode int
	// Transient reports whether the worker may retry the call.
	Transient bool
	// Err is the underlying cause, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Err != nil {
		return fmt.Sprintf("upstream %s failed (%s, status %d): %v", e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed (%s, status %d)", e.Op, kind, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// NewTransientUpstream wraps a transport-level failure that should be retried.
func NewTransientUpstream(op string, err error) *UpstreamError {
	return &UpstreamError{Op: op, Transient: true, Err: err}
}

// UpstreamFromStatus classifies a non-2xx remote response. Server-side
// failures are transient; client-side responses mean the request or its
// target is bad and retrying cannot help.
func UpstreamFromStatus(op string, status int) *UpstreamError {
	return &UpstreamError{Op: op, StatusCode: status, Transient: status >= 500}
}

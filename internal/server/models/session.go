package models

import "time"

// Chunked upload session states.
const (
	SessionOpen      = "OPEN"
	SessionAssembled = "ASSEMBLED"
)

// ChunkedUploadSession tracks an in-flight multi-part upload. Chunk bytes are
// staged on disk; the received set is the chunked_upload_chunks row set, so
// duplicate chunk writes overwrite the same slot instead of appending.
type ChunkedUploadSession struct {
	// ID is the opaque session token handed to the client.
	ID       string
	FileName string
	// TotalSize is the declared size of the assembled file.
	TotalSize int64
	// TotalChunks is the declared chunk count; indices are 1-based.
	TotalChunks int
	// State flips to ASSEMBLED once assembly starts; the session accepts
	// no further writes after that.
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s *ChunkedUploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ChunkProgress reports how much of a session has arrived.
type ChunkProgress struct {
	SessionID   string
	Received    int
	TotalChunks int
}

// PercentComplete returns receipt progress in percent.
func (p ChunkProgress) PercentComplete() float64 {
	if p.TotalChunks == 0 {
		return 0
	}
	return float64(p.Received) / float64(p.TotalChunks) * 100
}

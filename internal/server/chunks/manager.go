// Package chunks manages multi-part upload sessions. Session state is
// durable (it survives restarts) while chunk bytes are staged on disk until
// assembly. Chunks are addressed by an explicit 1-based index, so arrival
// order does not matter and client retries are idempotent.
package chunks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/repositories/sessions"
)

// Manager tracks in-flight chunked uploads.
type Manager struct {
	sessions    sessions.Repository
	staging     string
	maxFileSize int64
	maxChunk    int64
	ttl         time.Duration
	logger      logging.Logger
}

// Options configures a Manager.
type Options struct {
	StagingDir   string
	MaxFileSize  int64
	MaxChunkSize int64
	SessionTTL   time.Duration
}

// NewManager creates the staging root if needed.
func NewManager(repo sessions.Repository, opts Options, logger logging.Logger) (*Manager, error) {
	if err := os.MkdirAll(opts.StagingDir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", opts.StagingDir, err)
	}
	return &Manager{
		sessions:    repo,
		staging:     opts.StagingDir,
		maxFileSize: opts.MaxFileSize,
		maxChunk:    opts.MaxChunkSize,
		ttl:         opts.SessionTTL,
		logger:      logger.With("module", "chunks"),
	}, nil
}

func (m *Manager) sessionDir(id string) string {
	return filepath.Join(m.staging, id)
}

func (m *Manager) slotPath(id string, index int) string {
	return filepath.Join(m.sessionDir(id), fmt.Sprintf("%06d.part", index))
}

// Begin opens a new session and returns its id.
func (m *Manager) Begin(ctx context.Context, fileName string, totalSize int64, totalChunks int) (string, error) {
	if fileName == "" || totalChunks <= 0 || totalSize <= 0 {
		return "", common.ErrorValidation
	}
	if totalSize > m.maxFileSize {
		return "", fmt.Errorf("%w: declared size %d exceeds maximum %d", common.ErrorValidation, totalSize, m.maxFileSize)
	}

	s := &models.ChunkedUploadSession{
		ID:          uuid.NewString(),
		FileName:    fileName,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		State:       models.SessionOpen,
		ExpiresAt:   time.Now().Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, s); err != nil {
		return "", err
	}
	if err := os.MkdirAll(m.sessionDir(s.ID), 0o770); err != nil {
		return "", fmt.Errorf("mkdir session staging: %w", err)
	}

	m.logger.Info(ctx, "session opened", "session_id", s.ID, "file", fileName, "chunks", totalChunks)
	return s.ID, nil
}

// open returns the session when it is still writable.
func (m *Manager) open(ctx context.Context, sessionID string) (*models.ChunkedUploadSession, error) {
	s, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.State != models.SessionOpen || s.Expired(time.Now()) {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

// Append stores one chunk. A retry of an index already received overwrites
// the same slot; a duplicate index with a different byte length is a conflict
// because it would corrupt the assembled output.
func (m *Manager) Append(ctx context.Context, sessionID string, index int, data []byte) (models.ChunkProgress, error) {
	var progress models.ChunkProgress

	s, err := m.open(ctx, sessionID)
	if err != nil {
		return progress, err
	}
	if index < 1 || index > s.TotalChunks {
		return progress, fmt.Errorf("%w: chunk index %d out of range 1..%d", common.ErrorValidation, index, s.TotalChunks)
	}
	if len(data) == 0 {
		return progress, fmt.Errorf("%w: empty chunk", common.ErrorValidation)
	}
	if m.maxChunk > 0 && int64(len(data)) > m.maxChunk {
		return progress, fmt.Errorf("%w: chunk of %d bytes exceeds limit %d", common.ErrorValidation, len(data), m.maxChunk)
	}

	sizes, err := m.sessions.ChunkSizes(ctx, sessionID)
	if err != nil {
		return progress, err
	}
	if prev, ok := sizes[index]; ok && prev != int64(len(data)) {
		return progress, fmt.Errorf("%w: chunk %d resubmitted with different length", common.ErrorConflict, index)
	}

	if err := os.WriteFile(m.slotPath(sessionID, index), data, 0o660); err != nil {
		return progress, fmt.Errorf("write chunk slot: %w", err)
	}
	if err := m.sessions.UpsertChunk(ctx, sessionID, index, int64(len(data))); err != nil {
		return progress, err
	}

	received, err := m.sessions.CountChunks(ctx, sessionID)
	if err != nil {
		return progress, err
	}
	return models.ChunkProgress{SessionID: sessionID, Received: received, TotalChunks: s.TotalChunks}, nil
}

// Progress reports receipt state. An assembled session reports every chunk
// received; its staged slots are already reclaimed, so the stored count is
// not consulted.
func (m *Manager) Progress(ctx context.Context, sessionID string) (models.ChunkProgress, error) {
	var progress models.ChunkProgress

	s, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return progress, err
	}
	if s.State == models.SessionAssembled {
		return models.ChunkProgress{SessionID: sessionID, Received: s.TotalChunks, TotalChunks: s.TotalChunks}, nil
	}
	if s.Expired(time.Now()) {
		return progress, common.ErrorNotFound
	}
	received, err := m.sessions.CountChunks(ctx, sessionID)
	if err != nil {
		return progress, err
	}
	return models.ChunkProgress{SessionID: sessionID, Received: received, TotalChunks: s.TotalChunks}, nil
}

// Complete reports whether every declared chunk has arrived.
func (m *Manager) Complete(ctx context.Context, sessionID string) (bool, error) {
	p, err := m.Progress(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return p.Received == p.TotalChunks, nil
}

// Assemble concatenates the chunks in index order and retires the session.
// The session flip to ASSEMBLED happens first, so a concurrent Assemble or
// Append observes a terminal session and fails with ErrorNotFound.
func (m *Manager) Assemble(ctx context.Context, sessionID string) ([]byte, string, error) {
	s, err := m.open(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	received, err := m.sessions.CountChunks(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if received != s.TotalChunks {
		return nil, "", fmt.Errorf("%w: %d of %d chunks received", common.ErrorValidation, received, s.TotalChunks)
	}

	if err := m.sessions.MarkAssembled(ctx, sessionID); err != nil {
		return nil, "", err
	}

	out := make([]byte, 0, s.TotalSize)
	for i := 1; i <= s.TotalChunks; i++ {
		part, err := os.ReadFile(m.slotPath(sessionID, i))
		if err != nil {
			return nil, "", fmt.Errorf("read chunk %d: %w", i, err)
		}
		out = append(out, part...)
	}

	if int64(len(out)) != s.TotalSize {
		m.logger.Warn(ctx, "assembled size differs from declared size",
			"session_id", sessionID, "declared", s.TotalSize, "assembled", len(out))
	}

	if err := os.RemoveAll(m.sessionDir(sessionID)); err != nil {
		m.logger.Warn(ctx, "staging cleanup failed", "session_id", sessionID, "error", err)
	}

	m.logger.Info(ctx, "session assembled", "session_id", sessionID, "bytes", len(out))
	return out, s.FileName, nil
}

// Sweep removes expired sessions and reclaims their staged chunks.
func (m *Manager) Sweep(ctx context.Context) error {
	ids, err := m.sessions.DeleteExpired(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := os.RemoveAll(m.sessionDir(id)); err != nil {
			m.logger.Warn(ctx, "staging cleanup failed", "session_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		m.logger.Info(ctx, "expired sessions reclaimed", "count", len(ids))
	}
	return nil
}

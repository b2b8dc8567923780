package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

// SessionRepository is an in-memory sessions.Repository.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.ChunkedUploadSession
	chunks   map[string]map[int]int64
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*models.ChunkedUploadSession),
		chunks:   make(map[string]map[int]int64),
	}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.ChunkedUploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.sessions[cp.ID] = &cp
	r.chunks[cp.ID] = make(map[int]int64)
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*models.ChunkedUploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) UpsertChunk(ctx context.Context, sessionID string, index int, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return common.ErrorNotFound
	}
	r.chunks[sessionID][index] = size
	return nil
}

func (r *SessionRepository) ChunkSizes(ctx context.Context, sessionID string) (map[int]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make(map[int]int64, len(r.chunks[sessionID]))
	for k, v := range r.chunks[sessionID] {
		sizes[k] = v
	}
	return sizes, nil
}

func (r *SessionRepository) CountChunks(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks[sessionID]), nil
}

func (r *SessionRepository) MarkAssembled(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.State != models.SessionOpen {
		return common.ErrorNotFound
	}
	s.State = models.SessionAssembled
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if now.After(s.ExpiresAt) {
			delete(r.sessions, id)
			delete(r.chunks, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.chunks, id)
	return nil
}

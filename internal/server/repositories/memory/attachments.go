package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

// AttachmentRepository is an in-memory attachments.Repository.
type AttachmentRepository struct {
	mu      sync.Mutex
	records map[string]*models.AttachmentRecord
}

func NewAttachmentRepository() *AttachmentRepository {
	return &AttachmentRepository{records: make(map[string]*models.AttachmentRecord)}
}

func (r *AttachmentRepository) Create(ctx context.Context, rec *models.AttachmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.records[cp.ID] = &cp
	return nil
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *AttachmentRepository) FindByGUID(ctx context.Context, guid string) (*models.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.DeletedAt != nil {
			continue
		}
		if rec.ID == guid || (rec.RemoteGUID != nil && *rec.RemoteGUID == guid) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *AttachmentRepository) FindByHashAndWorkItem(ctx context.Context, hash string, workItemID int64) (*models.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.DeletedAt == nil && rec.ContentHash == hash && rec.WorkItemID == workItemID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *AttachmentRepository) FindByHash(ctx context.Context, hash string) (*models.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.AttachmentRecord
	for _, rec := range r.records {
		if rec.DeletedAt != nil || rec.ContentHash != hash {
			continue
		}
		if best == nil || rec.CreatedAt.Before(best.CreatedAt) {
			best = rec
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *AttachmentRepository) ListByWorkItem(ctx context.Context, workItemID int64) ([]*models.AttachmentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.AttachmentRecord
	for _, rec := range r.records {
		if rec.DeletedAt == nil && rec.WorkItemID == workItemID {
			cp := *rec
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (r *AttachmentRepository) UpsertRemote(ctx context.Context, rec *models.AttachmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.records {
		if existing.DeletedAt == nil && existing.ContentHash == rec.ContentHash && existing.WorkItemID == rec.WorkItemID {
			existing.RemoteGUID = rec.RemoteGUID
			existing.SyncStatus = rec.SyncStatus
			existing.UpdatedAt = time.Now()
			return nil
		}
	}
	cp := *rec
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.records[cp.ID] = &cp
	return nil
}

func (r *AttachmentRepository) MarkSynced(ctx context.Context, id string, remoteGUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.DeletedAt != nil {
		return common.ErrorNotFound
	}
	rec.SyncStatus = models.StatusSynced
	rec.RemoteGUID = &remoteGUID
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *AttachmentRepository) MarkFailed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.DeletedAt != nil {
		return common.ErrorNotFound
	}
	rec.SyncStatus = models.StatusFailed
	rec.UpdatedAt = time.Now()
	return nil
}

func (r *AttachmentRepository) SoftDelete(ctx context.Context, guid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.DeletedAt != nil {
			continue
		}
		if rec.ID == guid || (rec.RemoteGUID != nil && *rec.RemoteGUID == guid) {
			now := time.Now()
			rec.DeletedAt = &now
			rec.UpdatedAt = now
			return nil
		}
	}
	return common.ErrorNotFound
}

func (r *AttachmentRepository) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.DeletedAt != nil && rec.DeletedAt.Before(olderThan) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *AttachmentRepository) ReferencedHashes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var hashes []string
	for _, rec := range r.records {
		if _, ok := seen[rec.ContentHash]; !ok {
			seen[rec.ContentHash] = struct{}{}
			hashes = append(hashes, rec.ContentHash)
		}
	}
	return hashes, nil
}

func (r *AttachmentRepository) Summary(ctx context.Context, workItemID int64) (*models.WorkItemSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &models.WorkItemSummary{WorkItemID: workItemID}
	for _, rec := range r.records {
		if rec.DeletedAt != nil || rec.WorkItemID != workItemID {
			continue
		}
		switch rec.SyncStatus {
		case models.StatusPending:
			s.Pending++
		case models.StatusSynced:
			s.Synced++
		case models.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

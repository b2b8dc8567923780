package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

// JobRepository is an in-memory jobs.Repository with the same claim
// semantics as the PostgreSQL implementation: oldest eligible job first, at
// most one RUNNING job per (work item, attachment) pair.
type JobRepository struct {
	mu   sync.Mutex
	jobs []*models.SyncJob
}

func NewJobRepository() *JobRepository {
	return &JobRepository{}
}

func (r *JobRepository) Enqueue(ctx context.Context, job *models.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	cp.Status = models.JobQueued
	now := time.Now()
	cp.CreatedAt = now
	if cp.NextAttemptAt.IsZero() {
		cp.NextAttemptAt = now
	}
	r.jobs = append(r.jobs, &cp)
	return nil
}

func pairKey(job *models.SyncJob) string {
	key := ""
	if job.AttachmentID != nil {
		key = *job.AttachmentID
	}
	return key
}

func (r *JobRepository) Claim(ctx context.Context) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	running := make(map[int64]map[string]bool)
	for _, j := range r.jobs {
		if j.Status == models.JobRunning {
			if running[j.WorkItemID] == nil {
				running[j.WorkItemID] = make(map[string]bool)
			}
			running[j.WorkItemID][pairKey(j)] = true
		}
	}

	now := time.Now()
	var oldest *models.SyncJob
	for _, j := range r.jobs {
		if j.Status != models.JobQueued || j.NextAttemptAt.After(now) {
			continue
		}
		if running[j.WorkItemID][pairKey(j)] {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = models.JobRunning
	oldest.Attempts++
	started := now
	oldest.StartedAt = &started
	cp := *oldest
	return &cp, nil
}

func (r *JobRepository) find(id string) *models.SyncJob {
	for _, j := range r.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil || j.Status != models.JobRunning {
		return common.ErrorNotFound
	}
	j.Status = models.JobDone
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (r *JobRepository) Requeue(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil || j.Status != models.JobRunning {
		return common.ErrorNotFound
	}
	j.Status = models.JobQueued
	j.LastError = lastError
	j.NextAttemptAt = nextAttemptAt
	return nil
}

func (r *JobRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil || j.Status != models.JobRunning {
		return common.ErrorNotFound
	}
	j.Status = models.JobFailed
	j.LastError = lastError
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.find(id)
	if j == nil {
		return nil, common.ErrorNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepository) RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.SyncJob
	for i := len(r.jobs) - 1; i >= 0 && len(result) < limit; i-- {
		if r.jobs[i].WorkItemID == workItemID {
			cp := *r.jobs[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

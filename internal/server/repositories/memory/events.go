package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// EventRepository is an in-memory events.Repository.
type EventRepository struct {
	mu       sync.Mutex
	events   []*models.SyncEvent
	external map[string]bool
	nextID   int64
}

func NewEventRepository() *EventRepository {
	return &EventRepository{external: make(map[string]bool)}
}

func (r *EventRepository) Append(ctx context.Context, e *models.SyncEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(e)
	return nil
}

func (r *EventRepository) append(e *models.SyncEvent) {
	cp := *e
	r.nextID++
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	r.events = append(r.events, &cp)
}

func (r *EventRepository) AppendExternal(ctx context.Context, e *models.SyncEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ExternalEventID != nil {
		if r.external[*e.ExternalEventID] {
			return false, nil
		}
		r.external[*e.ExternalEventID] = true
	}
	r.append(e)
	return true, nil
}

func (r *EventRepository) SeenExternal(ctx context.Context, externalEventID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.external[externalEventID], nil
}

func (r *EventRepository) RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.SyncEvent
	for i := len(r.events) - 1; i >= 0 && len(result) < limit; i-- {
		if r.events[i].WorkItemID == workItemID {
			cp := *r.events[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}

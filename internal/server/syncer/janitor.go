package syncer

import (
	"context"
	"database/sql"
	"time"

	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/cas"
	"github.com/mpetrovs/attachsync/internal/server/chunks"
	"github.com/mpetrovs/attachsync/internal/server/repositories/repomanager"
)

// Janitor runs the periodic background sweeps: expired upload sessions,
// soft-deleted rows past the retention window, and content-store orphans.
type Janitor struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	store     cas.Store
	chunks    *chunks.Manager
	retention time.Duration
	interval  time.Duration
	logger    logging.Logger
}

func NewJanitor(db *sql.DB, repos repomanager.RepositoryManager, store cas.Store, chunkMgr *chunks.Manager, retention, interval time.Duration, logger logging.Logger) *Janitor {
	return &Janitor{
		db:        db,
		repos:     repos,
		store:     store,
		chunks:    chunkMgr,
		retention: retention,
		interval:  interval,
		logger:    logger.With("module", "janitor"),
	}
}

// Run sweeps on a fixed interval until the context is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs every maintenance pass once. Each pass is independent; a failure
// in one is logged and does not stop the others.
func (j *Janitor) Sweep(ctx context.Context) {
	if err := j.chunks.Sweep(ctx); err != nil {
		j.logger.Error(ctx, "session sweep failed", "error", err)
	}

	purged, err := j.repos.Attachments(j.db).PurgeDeleted(ctx, time.Now().Add(-j.retention))
	if err != nil {
		j.logger.Error(ctx, "retention purge failed", "error", err)
	} else if purged > 0 {
		j.logger.Info(ctx, "soft-deleted rows purged", "count", purged)
	}

	if err := j.sweepOrphans(ctx); err != nil {
		j.logger.Error(ctx, "orphan sweep failed", "error", err)
	}
}

// sweepOrphans removes stored content no metadata row references anymore.
// ReferencedHashes includes soft-deleted rows, so bytes outlive their record
// until the retention purge drops the row.
func (j *Janitor) sweepOrphans(ctx context.Context) error {
	referenced, err := j.repos.Attachments(j.db).ReferencedHashes(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]bool, len(referenced))
	for _, h := range referenced {
		live[h] = true
	}

	keys, err := j.store.Keys(ctx)
	if err != nil {
		return err
	}

	var removed int
	for _, key := range keys {
		if live[key] {
			continue
		}
		if err := j.store.Remove(ctx, key); err != nil {
			j.logger.Warn(ctx, "orphan removal failed", "hash", key, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info(ctx, "orphaned content removed", "count", removed)
	}
	return nil
}

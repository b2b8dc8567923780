package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/cas"
	"github.com/mpetrovs/attachsync/internal/server/metrics"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/remote"
	"github.com/mpetrovs/attachsync/internal/server/repositories/repomanager"
)

// WorkerOptions tunes the queue worker.
type WorkerOptions struct {
	// MaxRetries is the attempt ceiling; a job whose attempt count reaches
	// it is marked FAILED terminally.
	MaxRetries int
	// BackoffBase is the delay before the second attempt; it doubles per
	// attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// PollInterval is the idle wait between queue polls.
	PollInterval time.Duration
}

// Worker drains the sync job queue, executing remote calls and updating
// attachment metadata. Multiple workers can run concurrently; the atomic
// claim keeps them off each other's jobs.
type Worker struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  cas.Store
	remote remote.Client
	opts   WorkerOptions
	logger logging.Logger
}

func NewWorker(db *sql.DB, repos repomanager.RepositoryManager, store cas.Store, client remote.Client, opts WorkerOptions, logger logging.Logger) *Worker {
	return &Worker{
		db:     db,
		repos:  repos,
		store:  store,
		remote: client,
		opts:   opts,
		logger: logger.With("module", "worker"),
	}
}

// Run polls the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		for {
			processed, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error(ctx, "queue poll failed", "error", err)
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job was
// processed, so callers can drain the queue without sleeping.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repos.Jobs(w.db).Claim(ctx)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	w.logger.Info(ctx, "job claimed",
		"job_id", job.ID, "type", job.Type, "work_item_id", job.WorkItemID, "attempt", job.Attempts)

	if err := w.execute(ctx, job); err != nil {
		w.settleFailure(ctx, job, err)
		return true, nil
	}

	if err := w.repos.Jobs(w.db).MarkDone(ctx, job.ID); err != nil {
		return true, fmt.Errorf("mark job done: %w", err)
	}
	metrics.JobsProcessed.WithLabelValues(job.Type, metrics.OutcomeDone).Inc()
	w.logger.Info(ctx, "job done", "job_id", job.ID, "type", job.Type)
	return true, nil
}

func (w *Worker) execute(ctx context.Context, job *models.SyncJob) error {
	switch job.Type {
	case models.JobPush:
		return w.push(ctx, job)
	case models.JobPull:
		return w.pull(ctx, job)
	case models.JobLink:
		return w.remote.Link(ctx, job.WorkItemID, job.LinkURL, job.FileName, job.Comment)
	case models.JobFullResync:
		return w.reconcile(ctx, job.WorkItemID)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

// push uploads the attachment's bytes and links them to the work item.
func (w *Worker) push(ctx context.Context, job *models.SyncJob) error {
	if job.AttachmentID == nil {
		return errors.New("push job without attachment id")
	}

	record, err := w.repos.Attachments(w.db).GetByID(ctx, *job.AttachmentID)
	if err != nil {
		return fmt.Errorf("load attachment: %w", err)
	}
	if record.SyncStatus == models.StatusSynced {
		return nil
	}

	data, err := w.store.Get(ctx, record.ContentHash)
	if err != nil {
		return fmt.Errorf("load content %s: %w", record.ContentHash, err)
	}

	uploaded, err := w.remote.Upload(ctx, record.FileName, data)
	if err != nil {
		return err
	}
	if err := w.remote.Link(ctx, record.WorkItemID, uploaded.URL, record.FileName, "synchronized"); err != nil {
		return err
	}

	if err := w.repos.Attachments(w.db).MarkSynced(ctx, record.ID, uploaded.GUID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	w.appendEvent(ctx, record.WorkItemID, models.SeverityInfo,
		fmt.Sprintf("attachment %s pushed to remote", record.FileName))
	return nil
}

// pull fetches remote attachments into the local store. A job carrying a
// remote GUID targets that single attachment; otherwise every remote
// attachment unknown locally is pulled.
func (w *Worker) pull(ctx context.Context, job *models.SyncJob) error {
	if job.RemoteGUID != nil {
		return w.pullOne(ctx, job.WorkItemID, *job.RemoteGUID, job.FileName)
	}

	remoteList, err := w.remote.List(ctx, job.WorkItemID)
	if err != nil {
		return err
	}
	for _, att := range remoteList {
		if att.GUID == "" {
			continue
		}
		_, err := w.repos.Attachments(w.db).FindByGUID(ctx, att.GUID)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return err
		}
		if err := w.pullOne(ctx, job.WorkItemID, att.GUID, att.FileName); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) pullOne(ctx context.Context, workItemID int64, guid, fileName string) error {
	data, err := w.remote.Download(ctx, guid)
	if err != nil {
		return err
	}

	hash, err := w.store.Put(ctx, data)
	if err != nil {
		return fmt.Errorf("store content: %w", err)
	}

	remoteGUID := guid
	record := &models.AttachmentRecord{
		ID:          uuid.NewString(),
		RemoteGUID:  &remoteGUID,
		WorkItemID:  workItemID,
		FileName:    fileName,
		SizeBytes:   int64(len(data)),
		ContentHash: hash,
		Origin:      models.OriginRemotePull,
		SyncStatus:  models.StatusSynced,
	}
	if err := w.repos.Attachments(w.db).UpsertRemote(ctx, record); err != nil {
		return fmt.Errorf("upsert pulled attachment: %w", err)
	}

	w.appendEvent(ctx, workItemID, models.SeverityInfo,
		fmt.Sprintf("attachment %s pulled from remote", fileName))
	return nil
}

// settleFailure decides between retry and terminal failure. Transient
// upstream errors retry with exponential backoff until the attempt ceiling;
// everything else fails immediately.
func (w *Worker) settleFailure(ctx context.Context, job *models.SyncJob, cause error) {
	var upstream *common.UpstreamError
	transient := errors.As(cause, &upstream) && upstream.Transient

	if transient && job.Attempts < w.opts.MaxRetries {
		delay := backoffDelay(w.opts.BackoffBase, w.opts.BackoffCap, job.Attempts)
		if err := w.repos.Jobs(w.db).Requeue(ctx, job.ID, cause.Error(), time.Now().Add(delay)); err != nil {
			w.logger.Error(ctx, "requeue failed", "job_id", job.ID, "error", err)
			return
		}
		metrics.JobsProcessed.WithLabelValues(job.Type, metrics.OutcomeRetried).Inc()
		w.logger.Warn(ctx, "job requeued",
			"job_id", job.ID, "attempt", job.Attempts, "delay", delay, "error", cause)
		return
	}

	if err := w.repos.Jobs(w.db).MarkFailed(ctx, job.ID, cause.Error()); err != nil {
		w.logger.Error(ctx, "mark failed failed", "job_id", job.ID, "error", err)
		return
	}
	if job.AttachmentID != nil {
		if err := w.repos.Attachments(w.db).MarkFailed(ctx, *job.AttachmentID); err != nil && !isNotFound(err) {
			w.logger.Error(ctx, "attachment status update failed", "attachment_id", *job.AttachmentID, "error", err)
		}
	}

	metrics.JobsProcessed.WithLabelValues(job.Type, metrics.OutcomeFailed).Inc()
	w.appendEvent(ctx, job.WorkItemID, models.SeverityError,
		fmt.Sprintf("%s job failed after %d attempts: %v", job.Type, job.Attempts, cause))
	w.logger.Error(ctx, "job failed terminally",
		"job_id", job.ID, "type", job.Type, "attempts", job.Attempts, "error", cause)
}

// backoffDelay doubles the base delay per attempt, capped.
func backoffDelay(base, ceiling time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

func (w *Worker) appendEvent(ctx context.Context, workItemID int64, severity, message string) {
	err := w.repos.Events(w.db).Append(ctx, &models.SyncEvent{
		WorkItemID: workItemID,
		Severity:   severity,
		Message:    message,
	})
	if err != nil {
		w.logger.Warn(ctx, "audit append failed", "work_item_id", workItemID, "error", err)
	}
}

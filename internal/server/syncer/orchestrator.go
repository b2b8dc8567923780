// Package syncer coordinates the two-way synchronization of attachments
// between local storage and the remote work-item tracker. The Orchestrator
// exposes the public operations; anything that needs a remote round-trip is
// enqueued as a sync job and executed by the Worker.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/dbx"
	"github.com/mpetrovs/attachsync/internal/logging"
	"github.com/mpetrovs/attachsync/internal/server/cas"
	"github.com/mpetrovs/attachsync/internal/server/metrics"
	"github.com/mpetrovs/attachsync/internal/server/models"
	"github.com/mpetrovs/attachsync/internal/server/remote"
	"github.com/mpetrovs/attachsync/internal/server/repositories/repomanager"
)

// Orchestrator is the top-level coordinator. It owns no persistent state:
// metadata lives in the repositories, bytes in the content store.
type Orchestrator struct {
	db          *sql.DB
	repos       repomanager.RepositoryManager
	store       cas.Store
	remote      remote.Client
	maxFileSize int64
	logger      logging.Logger
}

func NewOrchestrator(db *sql.DB, repos repomanager.RepositoryManager, store cas.Store, client remote.Client, maxFileSize int64, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		db:          db,
		repos:       repos,
		store:       store,
		remote:      client,
		maxFileSize: maxFileSize,
		logger:      logger.With("module", "syncer"),
	}
}

// inTx runs fn inside a database transaction. With a nil *sql.DB (in-memory
// repositories) fn runs directly; those repositories ignore the handle.
func (o *Orchestrator) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if o.db == nil {
		return fn(ctx, nil)
	}
	return dbx.WithTx(ctx, o.db, nil, fn)
}

// Upload stores the bytes, records metadata and queues a push to the remote
// tracker. It never blocks on a remote call: the upload succeeds locally even
// when the tracker is down.
//
// Identical bytes for the same work item resolve to the existing record.
func (o *Orchestrator) Upload(ctx context.Context, data []byte, fileName string, workItemID int64) (*models.AttachmentRecord, error) {
	if fileName == "" || workItemID <= 0 || len(data) == 0 {
		return nil, fmt.Errorf("%w: fileName, workItemId and content are required", common.ErrorValidation)
	}
	if int64(len(data)) > o.maxFileSize {
		return nil, fmt.Errorf("%w: file of %d bytes exceeds maximum %d", common.ErrorValidation, len(data), o.maxFileSize)
	}

	hash, err := o.store.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	var record *models.AttachmentRecord
	var deduped bool
	err = o.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		attRepo := o.repos.Attachments(tx)

		existing, err := attRepo.FindByHashAndWorkItem(ctx, hash, workItemID)
		if err == nil {
			record = existing
			deduped = true
			metrics.DedupHits.Inc()
			o.logger.Info(ctx, "upload deduplicated",
				"work_item_id", workItemID, "hash", hash, "attachment_id", existing.ID)
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		record = &models.AttachmentRecord{
			ID:          uuid.NewString(),
			WorkItemID:  workItemID,
			FileName:    fileName,
			SizeBytes:   int64(len(data)),
			ContentHash: hash,
			Origin:      models.OriginLocalUpload,
			SyncStatus:  models.StatusPending,
		}
		if err := attRepo.Create(ctx, record); err != nil {
			return err
		}

		attachmentID := record.ID
		return o.repos.Jobs(tx).Enqueue(ctx, &models.SyncJob{
			ID:           uuid.NewString(),
			Type:         models.JobPush,
			WorkItemID:   workItemID,
			AttachmentID: &attachmentID,
			FileName:     fileName,
			Status:       models.JobQueued,
		})
	})
	if err != nil {
		return nil, err
	}

	if !deduped {
		o.appendEvent(ctx, workItemID, models.SeverityInfo,
			fmt.Sprintf("attachment %s uploaded (%d bytes), push queued", fileName, len(data)))
	}
	return record, nil
}

// Link queues attaching an already uploaded remote blob to a work item.
func (o *Orchestrator) Link(ctx context.Context, workItemID int64, attachmentURL, fileName, comment string) (string, error) {
	if workItemID <= 0 || attachmentURL == "" || fileName == "" {
		return "", fmt.Errorf("%w: workItemId, attachmentUrl and fileName are required", common.ErrorValidation)
	}

	job := &models.SyncJob{
		ID:         uuid.NewString(),
		Type:       models.JobLink,
		WorkItemID: workItemID,
		LinkURL:    attachmentURL,
		FileName:   fileName,
		Comment:    comment,
		Status:     models.JobQueued,
	}
	if err := o.repos.Jobs(o.db).Enqueue(ctx, job); err != nil {
		return "", err
	}

	o.appendEvent(ctx, workItemID, models.SeverityInfo,
		fmt.Sprintf("link of %s queued", fileName))
	return job.ID, nil
}

// FetchRemote lists the work item's attachments on the tracker. This is the
// best-effort read path; callers must treat an error as "remote view
// unavailable", not as a failure of the local view.
func (o *Orchestrator) FetchRemote(ctx context.Context, workItemID int64) ([]remote.Attachment, error) {
	if workItemID <= 0 {
		return nil, fmt.Errorf("%w: invalid work item id", common.ErrorValidation)
	}
	return o.remote.List(ctx, workItemID)
}

// ListLocal returns the live local metadata for a work item.
func (o *Orchestrator) ListLocal(ctx context.Context, workItemID int64) ([]*models.AttachmentRecord, error) {
	return o.repos.Attachments(o.db).ListByWorkItem(ctx, workItemID)
}

// ForceSync queues a full reconciliation of a work item and returns the job
// id for status polling. Fire-and-forget: progress is observed via Status.
func (o *Orchestrator) ForceSync(ctx context.Context, workItemID int64) (string, error) {
	if workItemID <= 0 {
		return "", fmt.Errorf("%w: invalid work item id", common.ErrorValidation)
	}

	job := &models.SyncJob{
		ID:         uuid.NewString(),
		Type:       models.JobFullResync,
		WorkItemID: workItemID,
		Status:     models.JobQueued,
	}
	if err := o.repos.Jobs(o.db).Enqueue(ctx, job); err != nil {
		return "", err
	}

	o.appendEvent(ctx, workItemID, models.SeverityInfo, "full resync queued")
	return job.ID, nil
}

// Download pulls attachment bytes from the tracker, stores them and upserts a
// SYNCED record with origin remote-pull.
func (o *Orchestrator) Download(ctx context.Context, remoteGUID, fileName string, workItemID int64) (*models.AttachmentRecord, []byte, error) {
	if remoteGUID == "" || workItemID <= 0 {
		return nil, nil, fmt.Errorf("%w: attachmentGuid and workItemId are required", common.ErrorValidation)
	}

	data, err := o.remote.Download(ctx, remoteGUID)
	if err != nil {
		return nil, nil, err
	}

	hash, err := o.store.Put(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("store content: %w", err)
	}

	guid := remoteGUID
	record := &models.AttachmentRecord{
		ID:          uuid.NewString(),
		RemoteGUID:  &guid,
		WorkItemID:  workItemID,
		FileName:    fileName,
		SizeBytes:   int64(len(data)),
		ContentHash: hash,
		Origin:      models.OriginRemotePull,
		SyncStatus:  models.StatusSynced,
	}
	if err := o.repos.Attachments(o.db).UpsertRemote(ctx, record); err != nil {
		return nil, nil, err
	}

	o.appendEvent(ctx, workItemID, models.SeverityInfo,
		fmt.Sprintf("attachment %s pulled from remote (%d bytes)", fileName, len(data)))
	return record, data, nil
}

// Delete soft-deletes the record matching the local id or remote GUID. The
// content stays in the store until the retention sweep finds it unreferenced.
func (o *Orchestrator) Delete(ctx context.Context, guid string) error {
	if guid == "" {
		return fmt.Errorf("%w: attachment id is required", common.ErrorValidation)
	}
	record, err := o.repos.Attachments(o.db).FindByGUID(ctx, guid)
	if err != nil {
		return err
	}
	if err := o.repos.Attachments(o.db).SoftDelete(ctx, guid); err != nil {
		return err
	}
	o.appendEvent(ctx, record.WorkItemID, models.SeverityInfo,
		fmt.Sprintf("attachment %s soft-deleted", record.FileName))
	return nil
}

// DedupCheck reports whether content with the given hash is already known.
// A miss returns (nil, nil).
func (o *Orchestrator) DedupCheck(ctx context.Context, hash string) (*models.AttachmentRecord, error) {
	if hash == "" {
		return nil, fmt.Errorf("%w: hash is required", common.ErrorValidation)
	}
	record, err := o.repos.Attachments(o.db).FindByHash(ctx, hash)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// StatusReport is the operator view of one work item's sync state.
type StatusReport struct {
	Summary *models.WorkItemSummary
	Jobs    []*models.SyncJob
	Events  []*models.SyncEvent
}

// statusHistoryLimit caps the job and event lists in a status report.
const statusHistoryLimit = 20

// Status returns summary counts plus recent jobs and events.
func (o *Orchestrator) Status(ctx context.Context, workItemID int64) (*StatusReport, error) {
	if workItemID <= 0 {
		return nil, fmt.Errorf("%w: invalid work item id", common.ErrorValidation)
	}

	summary, err := o.repos.Attachments(o.db).Summary(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	recentJobs, err := o.repos.Jobs(o.db).RecentByWorkItem(ctx, workItemID, statusHistoryLimit)
	if err != nil {
		return nil, err
	}
	recentEvents, err := o.repos.Events(o.db).RecentByWorkItem(ctx, workItemID, statusHistoryLimit)
	if err != nil {
		return nil, err
	}

	return &StatusReport{Summary: summary, Jobs: recentJobs, Events: recentEvents}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}

// appendEvent writes an audit entry; audit failures are logged, never fatal.
func (o *Orchestrator) appendEvent(ctx context.Context, workItemID int64, severity, message string) {
	err := o.repos.Events(o.db).Append(ctx, &models.SyncEvent{
		WorkItemID: workItemID,
		Severity:   severity,
		Message:    message,
	})
	if err != nil {
		o.logger.Warn(ctx, "audit append failed", "work_item_id", workItemID, "error", err)
	}
}

package syncer

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mpetrovs/attachsync/internal/server/models"
)

// reconcile diffs local and remote attachment state for one work item and
// enqueues per-attachment jobs for everything missing on either side.
//
// Matching order: remote GUID is definitive; an unmatched remote attachment
// is adopted by a local record with the same file name and size (logged as a
// low-confidence match) before being pulled as new content. Local records
// without a remote counterpart are re-pushed.
func (w *Worker) reconcile(ctx context.Context, workItemID int64) error {
	remoteList, err := w.remote.List(ctx, workItemID)
	if err != nil {
		return err
	}
	local, err := w.repos.Attachments(w.db).ListByWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}

	matchedLocal := make(map[string]bool)
	remoteByGUID := make(map[string]bool, len(remoteList))

	localByGUID := make(map[string]*models.AttachmentRecord)
	for _, rec := range local {
		if rec.RemoteGUID != nil {
			localByGUID[*rec.RemoteGUID] = rec
		}
	}

	var pulls, pushes int
	for _, att := range remoteList {
		if att.GUID == "" {
			continue
		}
		remoteByGUID[att.GUID] = true

		if rec, ok := localByGUID[att.GUID]; ok {
			matchedLocal[rec.ID] = true
			continue
		}

		if rec := matchByNameAndSize(local, matchedLocal, att.FileName, att.SizeBytes); rec != nil {
			// Content is likely the same but we have no remote hash to
			// prove it; adopt the GUID and flag the match for review.
			matchedLocal[rec.ID] = true
			if err := w.repos.Attachments(w.db).MarkSynced(ctx, rec.ID, att.GUID); err != nil {
				return fmt.Errorf("adopt remote guid: %w", err)
			}
			w.appendEvent(ctx, workItemID, models.SeverityWarning,
				fmt.Sprintf("low-confidence match: local %s adopted remote attachment %s by name and size", rec.FileName, att.GUID))
			continue
		}

		guid := att.GUID
		err := w.repos.Jobs(w.db).Enqueue(ctx, &models.SyncJob{
			ID:         uuid.NewString(),
			Type:       models.JobPull,
			WorkItemID: workItemID,
			RemoteGUID: &guid,
			FileName:   att.FileName,
			Status:     models.JobQueued,
		})
		if err != nil {
			return err
		}
		pulls++
	}

	for _, rec := range local {
		if matchedLocal[rec.ID] {
			continue
		}
		if rec.RemoteGUID != nil && remoteByGUID[*rec.RemoteGUID] {
			continue
		}
		attachmentID := rec.ID
		err := w.repos.Jobs(w.db).Enqueue(ctx, &models.SyncJob{
			ID:           uuid.NewString(),
			Type:         models.JobPush,
			WorkItemID:   workItemID,
			AttachmentID: &attachmentID,
			FileName:     rec.FileName,
			Status:       models.JobQueued,
		})
		if err != nil {
			return err
		}
		pushes++
	}

	w.appendEvent(ctx, workItemID, models.SeverityInfo,
		fmt.Sprintf("resync diff: %d pull(s), %d push(es) queued", pulls, pushes))
	w.logger.Info(ctx, "resync reconciled",
		"work_item_id", workItemID, "remote", len(remoteList), "local", len(local), "pulls", pulls, "pushes", pushes)
	return nil
}

// matchByNameAndSize finds an unmatched local record without a remote GUID
// whose name and size equal the remote attachment's. A zero remote size means
// the tracker omitted it, which is not enough evidence to match on.
func matchByNameAndSize(local []*models.AttachmentRecord, matched map[string]bool, fileName string, size int64) *models.AttachmentRecord {
	if size <= 0 {
		return nil
	}
	for _, rec := range local {
		if matched[rec.ID] || rec.RemoteGUID != nil {
			continue
		}
		if rec.FileName == fileName && rec.SizeBytes == size {
			return rec
		}
	}
	return nil
}

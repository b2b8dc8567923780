// Package jobs stores the durable sync job queue in PostgreSQL.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/dbx"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, job_type, work_item_id, attachment_id, remote_guid, link_url, file_name, comment, status, attempts, last_error, next_attempt_at, created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*models.SyncJob, error) {
	var job models.SyncJob
	err := row.Scan(&job.ID, &job.Type, &job.WorkItemID, &job.AttachmentID, &job.RemoteGUID,
		&job.LinkURL, &job.FileName, &job.Comment, &job.Status, &job.Attempts, &job.LastError,
		&job.NextAttemptAt, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &job, nil
}

func (r *PostgresRepository) Enqueue(ctx context.Context, job *models.SyncJob) error {
	query := `
		INSERT INTO sync_job_queue
			(id, job_type, work_item_id, attachment_id, remote_guid, link_url, file_name, comment, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'QUEUED')
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, job.WorkItemID, job.AttachmentID, job.RemoteGUID,
		job.LinkURL, job.FileName, job.Comment)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// Claim is a single statement so two workers can never double-process a job:
// SKIP LOCKED skips rows another worker holds, and the NOT EXISTS clause keeps
// at most one RUNNING job per (work item, attachment) pair.
func (r *PostgresRepository) Claim(ctx context.Context) (*models.SyncJob, error) {
	query := `
		UPDATE sync_job_queue
		SET status = 'RUNNING', attempts = attempts + 1, started_at = now()
		WHERE id = (
			SELECT j.id FROM sync_job_queue j
			WHERE j.status = 'QUEUED' AND j.next_attempt_at <= now()
				AND NOT EXISTS (
					SELECT 1 FROM sync_job_queue r
					WHERE r.status = 'RUNNING'
						AND r.work_item_id = j.work_item_id
						AND r.attachment_id IS NOT DISTINCT FROM j.attachment_id
				)
			ORDER BY j.created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *PostgresRepository) MarkDone(ctx context.Context, id string) error {
	query := `UPDATE sync_job_queue
		SET status = 'DONE', completed_at = now()
		WHERE id::text = $1 AND status = 'RUNNING'`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) Requeue(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	query := `UPDATE sync_job_queue
		SET status = 'QUEUED', last_error = $2, next_attempt_at = $3
		WHERE id::text = $1 AND status = 'RUNNING'`
	return r.execOne(ctx, query, id, lastError, nextAttemptAt)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, lastError string) error {
	query := `UPDATE sync_job_queue
		SET status = 'FAILED', last_error = $2, completed_at = now()
		WHERE id::text = $1 AND status = 'RUNNING'`
	return r.execOne(ctx, query, id, lastError)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_job_queue WHERE id::text = $1`
	return scanJob(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_job_queue
		WHERE work_item_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, workItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

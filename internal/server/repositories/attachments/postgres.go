// Package attachments stores attachment sync metadata in PostgreSQL.
package attachments

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

// PostgresRepository implements Repository over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, remote_guid, work_item_id, file_name, size_bytes, content_hash, origin, sync_status, created_at, updated_at, deleted_at`

func scanRecord(row interface{ Scan(...any) error }) (*models.AttachmentRecord, error) {
	var rec models.AttachmentRecord
	err := row.Scan(&rec.ID, &rec.RemoteGUID, &rec.WorkItemID, &rec.FileName, &rec.SizeBytes,
		&rec.ContentHash, &rec.Origin, &rec.SyncStatus, &rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.AttachmentRecord) error {
	query := `
		INSERT INTO attachment_sync_metadata
			(id, remote_guid, work_item_id, file_name, size_bytes, content_hash, origin, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RemoteGUID, rec.WorkItemID, rec.FileName, rec.SizeBytes,
		rec.ContentHash, rec.Origin, rec.SyncStatus)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.AttachmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attachment_sync_metadata WHERE id::text = $1 AND deleted_at IS NULL`
	return scanRecord(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) FindByGUID(ctx context.Context, guid string) (*models.AttachmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attachment_sync_metadata
		WHERE (id::text = $1 OR remote_guid::text = $1) AND deleted_at IS NULL`
	return scanRecord(r.db.QueryRowContext(ctx, query, guid))
}

func (r *PostgresRepository) FindByHashAndWorkItem(ctx context.Context, hash string, workItemID int64) (*models.AttachmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attachment_sync_metadata
		WHERE content_hash = $1 AND work_item_id = $2 AND deleted_at IS NULL`
	return scanRecord(r.db.QueryRowContext(ctx, query, hash, workItemID))
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.AttachmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attachment_sync_metadata
		WHERE content_hash = $1 AND deleted_at IS NULL
		ORDER BY created_at
		LIMIT 1`
	return scanRecord(r.db.QueryRowContext(ctx, query, hash))
}

func (r *PostgresRepository) ListByWorkItem(ctx context.Context, workItemID int64) ([]*models.AttachmentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM attachment_sync_metadata
		WHERE work_item_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, workItemID)
	if err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.AttachmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertRemote records an attachment discovered on the remote side. A pull of
// bytes already known locally refreshes the remote GUID and flips the row to
// SYNCED instead of creating a duplicate.
func (r *PostgresRepository) UpsertRemote(ctx context.Context, rec *models.AttachmentRecord) error {
	query := `
		INSERT INTO attachment_sync_metadata
			(id, remote_guid, work_item_id, file_name, size_bytes, content_hash, origin, sync_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (content_hash, work_item_id) WHERE deleted_at IS NULL
		DO UPDATE SET
			remote_guid = EXCLUDED.remote_guid,
			sync_status = EXCLUDED.sync_status,
			updated_at = now()
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.RemoteGUID, rec.WorkItemID, rec.FileName, rec.SizeBytes,
		rec.ContentHash, rec.Origin, rec.SyncStatus)
	if err != nil {
		return fmt.Errorf("upsert attachment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id string, remoteGUID string) error {
	query := `UPDATE attachment_sync_metadata
		SET sync_status = 'SYNCED', remote_guid = $2, updated_at = now()
		WHERE id::text = $1 AND deleted_at IS NULL`
	return r.execOne(ctx, query, id, remoteGUID)
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id string) error {
	query := `UPDATE attachment_sync_metadata
		SET sync_status = 'FAILED', updated_at = now()
		WHERE id::text = $1 AND deleted_at IS NULL`
	return r.execOne(ctx, query, id)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, guid string) error {
	query := `UPDATE attachment_sync_metadata
		SET deleted_at = now(), updated_at = now()
		WHERE (id::text = $1 OR remote_guid::text = $1) AND deleted_at IS NULL`
	return r.execOne(ctx, query, guid)
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

func (r *PostgresRepository) PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM attachment_sync_metadata WHERE deleted_at IS NOT NULL AND deleted_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge attachments: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) ReferencedHashes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT content_hash FROM attachment_sync_metadata`)
	if err != nil {
		return nil, fmt.Errorf("select hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hashes, nil
}

// Summary reads the aggregated view; a work item with no attachments yields a
// zero summary, not an error.
func (r *PostgresRepository) Summary(ctx context.Context, workItemID int64) (*models.WorkItemSummary, error) {
	query := `SELECT pending, synced, failed FROM attachment_sync_summary WHERE work_item_id = $1`
	s := &models.WorkItemSummary{WorkItemID: workItemID}
	err := r.db.QueryRowContext(ctx, query, workItemID).Scan(&s.Pending, &s.Synced, &s.Failed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, nil
		}
		return nil, fmt.Errorf("select summary: %w", err)
	}
	return s, nil
}

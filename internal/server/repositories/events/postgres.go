// Package events stores the append-only sync event log in PostgreSQL.
package events

import (
	"context"
	"fmt"

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

func (r *PostgresRepository) Append(ctx context.Context, e *models.SyncEvent) error {
	query := `INSERT INTO sync_event_log (work_item_id, severity, message) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, e.WorkItemID, e.Severity, e.Message)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AppendExternal(ctx context.Context, e *models.SyncEvent) (bool, error) {
	query := `
		INSERT INTO sync_event_log (work_item_id, severity, message, external_event_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_event_id) WHERE external_event_id IS NOT NULL
		DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, e.WorkItemID, e.Severity, e.Message, e.ExternalEventID)
	if err != nil {
		return false, fmt.Errorf("append external event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SeenExternal(ctx context.Context, externalEventID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM sync_event_log WHERE external_event_id = $1)`
	var seen bool
	if err := r.db.QueryRowContext(ctx, query, externalEventID).Scan(&seen); err != nil {
		return false, fmt.Errorf("seen external event: %w", err)
	}
	return seen, nil
}

func (r *PostgresRepository) RecentByWorkItem(ctx context.Context, workItemID int64, limit int) ([]*models.SyncEvent, error) {
	query := `SELECT id, work_item_id, severity, message, external_event_id, created_at
		FROM sync_event_log
		WHERE work_item_id = $1
		ORDER BY created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, workItemID, limit)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var result []*models.SyncEvent
	for rows.Next() {
		var e models.SyncEvent
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Severity, &e.Message, &e.ExternalEventID, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Package sessions stores chunked upload session state in PostgreSQL.
package sessions

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

func (r *PostgresRepository) Create(ctx context.Context, s *models.ChunkedUploadSession) error {
	query := `
		INSERT INTO chunked_upload_sessions (id, file_name, total_size, total_chunks, state, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.FileName, s.TotalSize, s.TotalChunks, s.State, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.ChunkedUploadSession, error) {
	query := `SELECT id, file_name, total_size, total_chunks, state, created_at, expires_at
		FROM chunked_upload_sessions WHERE id::text = $1`
	var s models.ChunkedUploadSession
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&s.ID, &s.FileName, &s.TotalSize, &s.TotalChunks, &s.State, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) UpsertChunk(ctx context.Context, sessionID string, index int, size int64) error {
	query := `
		INSERT INTO chunked_upload_chunks (session_id, chunk_index, size_bytes)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, chunk_index)
		DO UPDATE SET size_bytes = EXCLUDED.size_bytes, received_at = now()
	`
	_, err := r.db.ExecContext(ctx, query, sessionID, index, size)
	if err != nil {
		return fmt.Errorf("upsert chunk: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ChunkSizes(ctx context.Context, sessionID string) (map[int]int64, error) {
	query := `SELECT chunk_index, size_bytes FROM chunked_upload_chunks WHERE session_id::text = $1`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select chunks: %w", err)
	}
	defer rows.Close()

	sizes := make(map[int]int64)
	for rows.Next() {
		var idx int
		var size int64
		if err := rows.Scan(&idx, &size); err != nil {
			return nil, err
		}
		sizes[idx] = size
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sizes, nil
}

func (r *PostgresRepository) CountChunks(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM chunked_upload_chunks WHERE session_id::text = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) MarkAssembled(ctx context.Context, sessionID string) error {
	query := `UPDATE chunked_upload_sessions SET state = 'ASSEMBLED' WHERE id::text = $1 AND state = 'OPEN'`
	res, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("mark assembled: %w", err)
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

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	query := `DELETE FROM chunked_upload_sessions WHERE expires_at < $1 RETURNING id`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunked_upload_sessions WHERE id::text = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

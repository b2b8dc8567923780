package sessions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*file_name`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestUpsertChunk_DuplicateIndexOverwrites(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)INSERT\s+INTO\s+chunked_upload_chunks\b.*ON\s+CONFLICT\s*\(session_id,\s*chunk_index\)\s*DO\s+UPDATE\s+SET\s+size_bytes`
	mock.ExpectExec(q).
		WithArgs("s1", 3, int64(2048)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertChunk(context.Background(), "s1", 3, 2048); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkAssembled_OnlyOpenSessions(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+chunked_upload_sessions\s+SET\s+state\s*=\s*'ASSEMBLED'.*state\s*=\s*'OPEN'`).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAssembled(context.Background(), "s1")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound for already-assembled session, got %v", err)
	}
}

func TestDeleteExpired_ReturnsIDs(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`DELETE\s+FROM\s+chunked_upload_sessions\s+WHERE\s+expires_at\s*<\s*\$1\s+RETURNING\s+id`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1").AddRow("s2"))

	ids, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(5 * time.Minute)
	mock.ExpectExec(`INSERT\s+INTO\s+chunked_upload_sessions`).
		WithArgs("s1", "big.bin", int64(10<<20), 5, models.SessionOpen, exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.ChunkedUploadSession{
		ID:          "s1",
		FileName:    "big.bin",
		TotalSize:   10 << 20,
		TotalChunks: 5,
		State:       models.SessionOpen,
		ExpiresAt:   exp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

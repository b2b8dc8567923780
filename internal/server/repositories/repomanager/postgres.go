// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/mpetrovs/attachsync/internal/dbx"
	"github.com/mpetrovs/attachsync/internal/server/migrations"
	"github.com/mpetrovs/attachsync/internal/server/repositories/attachments"
	"github.com/mpetrovs/attachsync/internal/server/repositories/events"
	"github.com/mpetrovs/attachsync/internal/server/repositories/jobs"
	"github.com/mpetrovs/attachsync/internal/server/repositories/sessions"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

// Attachments returns an attachments.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Attachments(db dbx.DBTX) attachments.Repository {
	return attachments.NewPostgresRepository(db)
}

// Jobs returns a jobs.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Jobs(db dbx.DBTX) jobs.Repository {
	return jobs.NewPostgresRepository(db)
}

// Sessions returns a sessions.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

// Events returns an events.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Events(db dbx.DBTX) events.Repository {
	return events.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

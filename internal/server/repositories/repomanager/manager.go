package repomanager

import (
	"context"
	"database/sql"

	"github.com/mpetrovs/attachsync/internal/dbx"
	"github.com/mpetrovs/attachsync/internal/server/repositories/attachments"
	"github.com/mpetrovs/attachsync/internal/server/repositories/events"
	"github.com/mpetrovs/attachsync/internal/server/repositories/jobs"
	"github.com/mpetrovs/attachsync/internal/server/repositories/sessions"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run several repository calls inside one transaction by handing
// each the same transactional handle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Attachments(db dbx.DBTX) attachments.Repository
	Jobs(db dbx.DBTX) jobs.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Events(db dbx.DBTX) events.Repository
}

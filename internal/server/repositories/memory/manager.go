// Package memory provides in-memory repository implementations. They back
// unit tests for the services and the worker, where spinning up PostgreSQL
// would add nothing: the contracts under test live above the storage layer.
package memory

import (
	"context"
	"database/sql"

	"github.com/mpetrovs/attachsync/internal/dbx"
	"github.com/mpetrovs/attachsync/internal/server/repositories/attachments"
	"github.com/mpetrovs/attachsync/internal/server/repositories/events"
	"github.com/mpetrovs/attachsync/internal/server/repositories/jobs"
	"github.com/mpetrovs/attachsync/internal/server/repositories/sessions"
)

// Manager vends the shared in-memory repositories. The DBTX argument is
// ignored; all callers observe the same state.
type Manager struct {
	attachments *AttachmentRepository
	jobs        *JobRepository
	sessions    *SessionRepository
	events      *EventRepository
}

func NewManager() *Manager {
	return &Manager{
		attachments: NewAttachmentRepository(),
		jobs:        NewJobRepository(),
		sessions:    NewSessionRepository(),
		events:      NewEventRepository(),
	}
}

func (m *Manager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *Manager) Attachments(db dbx.DBTX) attachments.Repository { return m.attachments }
func (m *Manager) Jobs(db dbx.DBTX) jobs.Repository               { return m.jobs }
func (m *Manager) Sessions(db dbx.DBTX) sessions.Repository       { return m.sessions }
func (m *Manager) Events(db dbx.DBTX) events.Repository           { return m.events }

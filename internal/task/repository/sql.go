package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/db/dialect"
)

// writeRetries bounds retries on transient write contention before the
// operation is reported as a Conflict.
const writeRetries = 3

// SQLRepository implements Repository on sqlx. The SQL works unchanged on
// SQLite and Postgres; the few divergent fragments come from the dialect
// package.
type SQLRepository struct {
	db *sqlx.DB
	ro *sqlx.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates the repository and ensures the task tables
// exist. The users table must already exist; tasks reference it.
func NewSQLRepository(pool *db.Pool) (*SQLRepository, error) {
	repo := &SQLRepository{db: pool.Writer(), ro: pool.Reader()}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize task schema: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) driver() string {
	return r.db.DriverName()
}

func (r *SQLRepository) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title          TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			completed      BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at   TIMESTAMP,
			priority       TEXT NOT NULL DEFAULT 'medium',
			due_at         TIMESTAMP,
			remind_at      TIMESTAMP,
			reminder_sent  BOOLEAN NOT NULL DEFAULT FALSE,
			recurrence     TEXT NOT NULL DEFAULT 'none',
			parent_task_id TEXT,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_completed ON tasks (user_id, completed)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_due ON tasks (user_id, due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_priority ON tasks (user_id, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due_reminders ON tasks (remind_at)
			WHERE remind_at IS NOT NULL AND reminder_sent = FALSE AND completed = FALSE`,
		`CREATE TABLE IF NOT EXISTS tags (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS task_tag_associations (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			tag_id  TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (task_id, tag_id)
		)`,
		// The PK only serves task_id-led lookups; tag-led scans (tag
		// filter, tag deletion cascade) need their own index.
		`CREATE INDEX IF NOT EXISTS idx_task_tags_tag ON task_tag_associations (tag_id)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id           ` + dialect.AutoIncrementPK(r.driver()) + `,
			event_id     TEXT NOT NULL UNIQUE,
			topic        TEXT NOT NULL,
			event_type   TEXT NOT NULL,
			owner_id     TEXT NOT NULL,
			payload      TEXT NOT NULL,
			created_at   TIMESTAMP NOT NULL,
			published_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished ON outbox (id)
			WHERE published_at IS NULL`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// inTx runs fn inside a write transaction, retrying on transient lock
// contention. After the retry budget the error surfaces as a Conflict.
func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < writeRetries; attempt++ {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			if isBusy(err) {
				lastErr = err
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			if isBusy(err) {
				lastErr = err
				time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}
	return apperr.Wrap(apperr.Conflict, "write lost concurrency race", lastErr)
}

// isBusy matches the driver-specific contention errors worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || // sqlite
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLSTATE 40001") // postgres serialization failure
}

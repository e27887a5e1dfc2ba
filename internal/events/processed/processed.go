// Package processed tracks consumed event ids so redelivered events are
// applied at most once per consumer.
package processed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/db/dialect"
)

// Store records which event ids a named consumer has already handled.
// Multiple consumers can share one table; rows are keyed by (consumer,
// event_id).
type Store struct {
	db       *sqlx.DB
	ro       *sqlx.DB
	consumer string
}

// NewStore creates the store for the given consumer name and ensures the
// backing table exists.
func NewStore(pool *db.Pool, consumer string) (*Store, error) {
	s := &Store{
		db:       pool.Writer(),
		ro:       pool.Reader(),
		consumer: consumer,
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize processed events schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_events (
		consumer     TEXT NOT NULL,
		event_id     TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (consumer, event_id)
	)`
	_, err := s.db.Exec(schema)
	return err
}

// Seen reports whether the consumer already handled the event.
func (s *Store) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	query := s.ro.Rebind(`SELECT 1 FROM processed_events WHERE consumer = ? AND event_id = ?`)
	err := s.ro.GetContext(ctx, &one, query, s.consumer, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

// Mark records the event as handled. Marking an already-recorded event is a
// no-op, so Mark is safe to call after redelivery.
func (s *Store) Mark(ctx context.Context, eventID string) error {
	query := s.db.Rebind(
		dialect.InsertIgnoreVerb(s.db.DriverName()) +
			` INTO processed_events (consumer, event_id, processed_at) VALUES (?, ?, ?)` +
			dialect.InsertIgnoreSuffix(s.db.DriverName()))
	if _, err := s.db.ExecContext(ctx, query, s.consumer, eventID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

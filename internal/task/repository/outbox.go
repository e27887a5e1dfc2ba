package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/events"
)

// insertOutbox writes an outbox row inside an existing transaction.
func insertOutbox(ctx context.Context, tx *sqlx.Tx, entry *OutboxInsert, now time.Time) error {
	query := tx.Rebind(`
		INSERT INTO outbox (event_id, topic, event_type, owner_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := tx.ExecContext(ctx, query,
		entry.EventID, entry.Topic, entry.EventType, entry.OwnerID,
		string(entry.Payload), now)
	if err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	return nil
}

// outboxRow mirrors the outbox table with a string payload; TEXT columns
// keep the payload readable on both drivers.
type outboxRow struct {
	ID        int64     `db:"id"`
	EventID   string    `db:"event_id"`
	Topic     string    `db:"topic"`
	EventType string    `db:"event_type"`
	OwnerID   string    `db:"owner_id"`
	Payload   string    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// UnpublishedOutbox returns up to limit pending outbox entries in insertion
// order.
func (r *SQLRepository) UnpublishedOutbox(ctx context.Context, limit int) ([]*events.OutboxEntry, error) {
	var rows []outboxRow
	query := r.ro.Rebind(`
		SELECT id, event_id, topic, event_type, owner_id, payload, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY id ASC LIMIT ?`)
	if err := r.ro.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load outbox: %w", err)
	}

	entries := make([]*events.OutboxEntry, len(rows))
	for i, row := range rows {
		entries[i] = &events.OutboxEntry{
			ID:        row.ID,
			EventID:   row.EventID,
			Topic:     row.Topic,
			EventType: row.EventType,
			OwnerID:   row.OwnerID,
			Payload:   []byte(row.Payload),
			CreatedAt: row.CreatedAt,
		}
	}
	return entries, nil
}

// MarkOutboxPublished records that the given entries reached the bus.
func (r *SQLRepository) MarkOutboxPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(
		`UPDATE outbox SET published_at = ? WHERE id IN (?)`,
		time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("failed to build outbox update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark outbox published: %w", err)
	}
	return nil
}

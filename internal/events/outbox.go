package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events/bus"
)

// OutboxEntry is a pending event row written in the same transaction as the
// state change it describes.
type OutboxEntry struct {
	ID        int64     `db:"id"`
	EventID   string    `db:"event_id"`
	Topic     string    `db:"topic"`
	EventType string    `db:"event_type"`
	OwnerID   string    `db:"owner_id"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}

// OutboxStore is the slice of the task repository the publisher drains.
type OutboxStore interface {
	// UnpublishedOutbox returns up to limit pending entries in insertion
	// order. Entries stay claimed only for the duration of the call;
	// publication is recorded separately via MarkOutboxPublished.
	UnpublishedOutbox(ctx context.Context, limit int) ([]*OutboxEntry, error)

	// MarkOutboxPublished records that the given entries reached the bus.
	MarkOutboxPublished(ctx context.Context, ids []int64) error
}

// OutboxPublisher drains the outbox table onto the event bus. Publication is
// at-least-once: an entry is marked published only after the bus accepted
// it, so a crash between publish and mark causes a duplicate, never a loss.
// Consumers dedup by event id.
type OutboxPublisher struct {
	store    OutboxStore
	bus      bus.EventBus
	source   string
	interval time.Duration
	batch    int
	logger   *logger.Logger
}

// NewOutboxPublisher creates an outbox publisher.
func NewOutboxPublisher(store OutboxStore, eventBus bus.EventBus, source string, interval time.Duration, batch int, log *logger.Logger) *OutboxPublisher {
	return &OutboxPublisher{
		store:    store,
		bus:      eventBus,
		source:   source,
		interval: interval,
		batch:    batch,
		logger:   log.WithFields(zap.String("component", "outbox-publisher")),
	}
}

// Start launches the drain loop. It runs until ctx is cancelled.
func (p *OutboxPublisher) Start(ctx context.Context) {
	p.logger.Info("starting outbox publisher",
		zap.Duration("interval", p.interval),
		zap.Int("batch", p.batch))

	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Info("outbox publisher stopped")
				return
			case <-ticker.C:
				if n, err := p.Drain(ctx); err != nil {
					p.logger.Error("outbox drain failed", zap.Error(err))
				} else if n > 0 {
					p.logger.Debug("drained outbox", zap.Int("published", n))
				}
			}
		}
	}()
}

// Drain publishes one batch of pending entries and returns how many were
// published. A publish failure stops the batch so per-task ordering is
// preserved; the remaining entries are retried on the next tick.
func (p *OutboxPublisher) Drain(ctx context.Context) (int, error) {
	entries, err := p.store.UnpublishedOutbox(ctx, p.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var published []int64
	for _, entry := range entries {
		var payload map[string]any
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			// A row that cannot be decoded would wedge the outbox
			// forever; mark it published and move on.
			p.logger.Error("dropping undecodable outbox entry",
				zap.Int64("outbox_id", entry.ID),
				zap.String("event_id", entry.EventID),
				zap.Error(err))
			published = append(published, entry.ID)
			continue
		}

		event := &bus.Event{
			ID:        entry.EventID,
			Type:      entry.EventType,
			Source:    p.source,
			EmittedAt: entry.CreatedAt,
			OwnerID:   entry.OwnerID,
			Payload:   payload,
		}
		if err := p.bus.Publish(ctx, entry.Topic, event); err != nil {
			p.logger.Warn("outbox publish failed, will retry",
				zap.String("event_id", entry.EventID),
				zap.String("topic", entry.Topic),
				zap.Error(err))
			break
		}
		published = append(published, entry.ID)
	}

	if len(published) > 0 {
		if err := p.store.MarkOutboxPublished(ctx, published); err != nil {
			return len(published), err
		}
	}
	return len(published), nil
}

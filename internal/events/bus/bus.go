// Package bus provides the event bus used to decouple the task API from the
// background workers. Two implementations exist: NATS for multi-process
// deployments and an in-memory bus for the unified binary and tests.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope published on every topic. Payload stays a generic
// map so the envelope survives schema drift between producer and consumer
// versions; typed payload accessors live in the events package.
type Event struct {
	ID        string         `json:"eventId"`
	Type      string         `json:"eventType"`
	Source    string         `json:"source"`
	EmittedAt time.Time      `json:"emittedAt"`
	OwnerID   string         `json:"ownerId"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent creates an event envelope with a fresh id and UTC timestamp.
func NewEvent(eventType, source, ownerID string, payload map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		EmittedAt: time.Now().UTC(),
		OwnerID:   ownerID,
		Payload:   payload,
	}
}

// EventHandler processes a delivered event. Returning an error from a queue
// subscription signals the transport that processing failed; whether the
// event is redelivered depends on the implementation.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus abstracts publish/subscribe messaging.
type EventBus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe delivers every matching event to the handler.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// QueueSubscribe delivers each matching event to one member of the
	// named queue group.
	QueueSubscribe(subject, queue string, handler EventHandler) (Subscription, error)

	// Close shuts down the bus and invalidates all subscriptions.
	Close()

	// IsConnected reports whether the bus can accept publishes.
	IsConnected() bool
}

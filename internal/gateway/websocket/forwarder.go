package websocket

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
)

// Notification is the JSON frame pushed to browsers.
type Notification struct {
	Topic     string         `json:"topic"`
	EventID   string         `json:"eventId"`
	EventType string         `json:"eventType"`
	EmittedAt time.Time      `json:"emittedAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Forwarder bridges the event bus to the hub: every task and reminder event
// is pushed to the connections of its owning user. Plain subscriptions, not
// queue groups; every gateway instance serves its own connections.
type Forwarder struct {
	bus    bus.EventBus
	hub    *Hub
	logger *logger.Logger
}

// NewForwarder creates a forwarder.
func NewForwarder(eventBus bus.EventBus, hub *Hub, log *logger.Logger) *Forwarder {
	return &Forwarder{
		bus:    eventBus,
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-forwarder")),
	}
}

// Start subscribes to both topics.
func (f *Forwarder) Start() ([]bus.Subscription, error) {
	var subs []bus.Subscription
	for _, topic := range []string{events.TopicTaskEvents, events.TopicReminders} {
		topic := topic
		sub, err := f.bus.Subscribe(topic, func(ctx context.Context, event *bus.Event) error {
			f.forward(ctx, topic, event)
			return nil
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func (f *Forwarder) forward(ctx context.Context, topic string, event *bus.Event) {
	if event.OwnerID == "" {
		return
	}

	data, err := json.Marshal(Notification{
		Topic:     topic,
		EventID:   event.ID,
		EventType: event.Type,
		EmittedAt: event.EmittedAt,
		Payload:   event.Payload,
	})
	if err != nil {
		f.logger.WithContext(ctx).Error("failed to marshal notification", zap.Error(err))
		return
	}
	f.hub.SendToUser(event.OwnerID, data)
}

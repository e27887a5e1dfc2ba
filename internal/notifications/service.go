// Package notifications implements the worker that turns reminder.due
// events into user notifications.
package notifications

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
	"github.com/taskloop/taskloop/internal/events/processed"
	"github.com/taskloop/taskloop/internal/notifications/providers"
)

// Service consumes reminder.due events and delivers one notification per
// event through the configured sender. Delivery is at least once; the
// processed store deduplicates by event id.
type Service struct {
	bus       bus.EventBus
	processed *processed.Store
	sender    providers.Sender
	templates Templates
	queue     string
	logger    *logger.Logger

	// recipientLocks serializes deliveries to the same address so a burst
	// of reminders for one user arrives in event order.
	mu             sync.Mutex
	recipientLocks map[string]*sync.Mutex
}

// NewService creates the notification worker.
func NewService(eventBus bus.EventBus, store *processed.Store, sender providers.Sender, templates Templates, queue string, log *logger.Logger) *Service {
	return &Service{
		bus:       eventBus,
		processed: store,
		sender:    sender,
		templates: templates,
		queue:     queue,
		logger: log.WithFields(
			zap.String("component", "notification-worker"),
			zap.String("sender", sender.Name())),
		recipientLocks: make(map[string]*sync.Mutex),
	}
}

// Start subscribes to the reminders topic as a queue group member.
func (s *Service) Start() (bus.Subscription, error) {
	return s.bus.QueueSubscribe(events.TopicReminders, s.queue, s.handle)
}

func (s *Service) handle(ctx context.Context, event *bus.Event) error {
	if event.Type != events.ReminderDue {
		return nil
	}

	log := s.logger.WithContext(ctx).WithEventID(event.ID)

	seen, err := s.processed.Seen(ctx, event.ID)
	if err != nil {
		return err
	}
	if seen {
		log.Debug("skipping already-processed event")
		return nil
	}

	payload, err := events.DecodeReminderDue(event.Payload)
	if err != nil {
		log.Warn("dropping malformed reminder.due event", zap.Error(err))
		return s.ack(ctx, event.ID)
	}

	log = log.WithTaskID(payload.TaskID).WithUserID(event.OwnerID)

	if payload.OwnerEmail == "" {
		log.Warn("reminder has no recipient address, dropping")
		return s.ack(ctx, event.ID)
	}

	subject, body, err := s.templates.ReminderDue.Render(ReminderData{
		Title:    payload.Title,
		RemindAt: payload.RemindAt,
		DueAt:    payload.DueAt,
	})
	if err != nil {
		log.Error("failed to render reminder notification", zap.Error(err))
		return s.ack(ctx, event.ID)
	}

	email := providers.Email{To: payload.OwnerEmail, Subject: subject, Body: body}

	lock := s.recipientLock(payload.OwnerEmail)
	lock.Lock()
	err = s.sender.Send(ctx, email)
	lock.Unlock()

	if err != nil {
		if apperr.IsTransient(err) || apperr.KindOf(err) == apperr.Deadline {
			return err
		}
		log.Error("notification permanently rejected", zap.Error(err))
		return s.ack(ctx, event.ID)
	}

	log.Info("reminder notification delivered", zap.String("to", payload.OwnerEmail))
	return s.ack(ctx, event.ID)
}

// ack records the event as handled; a failed mark is logged, not retried,
// since the notification already went out.
func (s *Service) ack(ctx context.Context, eventID string) error {
	if err := s.processed.Mark(ctx, eventID); err != nil {
		s.logger.WithContext(ctx).Error("failed to mark event processed",
			zap.String("event_id", eventID), zap.Error(err))
	}
	return nil
}

func (s *Service) recipientLock(recipient string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.recipientLocks[recipient]
	if !ok {
		lock = &sync.Mutex{}
		s.recipientLocks[recipient] = lock
	}
	return lock
}

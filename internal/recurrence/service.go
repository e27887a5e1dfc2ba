package recurrence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
	"github.com/taskloop/taskloop/internal/events/processed"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// TaskAPI is the slice of the task API the worker needs. *taskclient.Client
// satisfies it; tests substitute a fake.
type TaskAPI interface {
	GetTask(ctx context.Context, actingUserID, taskID string) (*v1.Task, error)
	CreateTask(ctx context.Context, actingUserID string, req *v1.CreateTaskRequest) (*v1.Task, error)
}

// Service consumes task.completed events and creates the next occurrence of
// recurring tasks through the task API. Delivery is at least once; the
// processed store deduplicates by event id so redeliveries do not spawn
// duplicate successors.
type Service struct {
	bus       bus.EventBus
	processed *processed.Store
	api       TaskAPI
	queue     string
	logger    *logger.Logger
}

// NewService creates the recurrence worker.
func NewService(eventBus bus.EventBus, store *processed.Store, api TaskAPI, queue string, log *logger.Logger) *Service {
	return &Service{
		bus:       eventBus,
		processed: store,
		api:       api,
		queue:     queue,
		logger:    log.WithFields(zap.String("component", "recurrence-worker")),
	}
}

// Start subscribes to the task events topic as a queue group member so
// multiple worker replicas share the load.
func (s *Service) Start() (bus.Subscription, error) {
	return s.bus.QueueSubscribe(events.TopicTaskEvents, s.queue, s.handle)
}

// handle processes one delivered event. Returning an error requests
// redelivery, so only transient failures return one; malformed or
// permanently rejected events are recorded and acknowledged to keep a
// poison event from wedging the topic.
func (s *Service) handle(ctx context.Context, event *bus.Event) error {
	if event.Type != events.TaskCompleted {
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

	payload, err := events.DecodeTaskCompleted(event.Payload)
	if err != nil {
		log.Warn("dropping malformed task.completed event", zap.Error(err))
		return s.ack(ctx, event.ID)
	}
	if !v1.Recurrence(payload.Recurrence).Repeats() {
		return s.ack(ctx, event.ID)
	}

	log = log.WithTaskID(payload.TaskID).WithUserID(event.OwnerID)

	task, err := s.api.GetTask(ctx, event.OwnerID, payload.TaskID)
	if err != nil {
		if apperr.IsNotFound(err) {
			log.Debug("task deleted before recurrence ran")
			return s.ack(ctx, event.ID)
		}
		if apperr.IsTransient(err) {
			return err
		}
		log.Error("failed to fetch completed task", zap.Error(err))
		return s.ack(ctx, event.ID)
	}
	// The recurrence rule may have been cleared between completion and
	// delivery; the task's current rule wins over the payload snapshot.
	if !task.Recurrence.Repeats() {
		return s.ack(ctx, event.ID)
	}

	now := time.Now().UTC()
	base := payload.CompletedAt
	if task.DueAt != nil {
		base = *task.DueAt
	}
	if base.IsZero() {
		base = event.EmittedAt
	}

	nextDue, err := NextDue(base, task.Recurrence, now)
	if err != nil {
		log.Warn("cannot schedule next occurrence", zap.Error(err))
		return s.ack(ctx, event.ID)
	}

	req := &v1.CreateTaskRequest{
		Title:        task.Title,
		Description:  task.Description,
		Priority:     task.Priority,
		DueAt:        &nextDue,
		RemindAt:     NextRemind(nextDue, task.DueAt, task.RemindAt, now),
		Recurrence:   task.Recurrence,
		ParentTaskID: &task.ID,
		Tags:         task.Tags,
	}

	created, err := s.api.CreateTask(ctx, event.OwnerID, req)
	if err != nil {
		if apperr.IsTransient(err) {
			return err
		}
		log.Error("task API rejected next occurrence", zap.Error(err))
		return s.ack(ctx, event.ID)
	}

	log.Info("scheduled next occurrence",
		zap.String("next_task_id", created.ID),
		zap.Time("next_due_at", nextDue),
		zap.String("recurrence", string(task.Recurrence)))
	return s.ack(ctx, event.ID)
}

// ack records the event as handled. A failed mark after a successful create
// is logged but not retried: redelivering at that point would duplicate the
// successor, which is worse than a stale dedup row.
func (s *Service) ack(ctx context.Context, eventID string) error {
	if err := s.processed.Mark(ctx, eventID); err != nil {
		s.logger.WithContext(ctx).Error("failed to mark event processed",
			zap.String("event_id", eventID), zap.Error(err))
	}
	return nil
}

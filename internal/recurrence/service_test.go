package recurrence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/db"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
	"github.com/taskloop/taskloop/internal/events/processed"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

type fakeAPI struct {
	tasks     map[string]*v1.Task
	getErr    error
	createErr error
	created   []*v1.CreateTaskRequest
}

func (f *fakeAPI) GetTask(_ context.Context, _, taskID string) (*v1.Task, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	task, ok := f.tasks[taskID]
	if !ok {
		return nil, apperr.NotFoundf("task not found: %s", taskID)
	}
	return task, nil
}

func (f *fakeAPI) CreateTask(_ context.Context, _ string, req *v1.CreateTaskRequest) (*v1.Task, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &v1.Task{ID: fmt.Sprintf("created-%d", len(f.created))}, nil
}

func newTestWorker(t *testing.T) (*Service, *fakeAPI, *bus.MemoryEventBus, *processed.Store) {
	t.Helper()

	conn, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	store, err := processed.NewStore(db.NewPool(conn, conn), "recurrence-test")
	require.NoError(t, err)

	api := &fakeAPI{tasks: make(map[string]*v1.Task)}
	memBus := bus.NewMemoryEventBus(logger.Default())
	t.Cleanup(memBus.Close)

	svc := NewService(memBus, store, api, "recurrence-test", logger.Default())
	_, err = svc.Start()
	require.NoError(t, err)
	return svc, api, memBus, store
}

func completedEvent(taskID string, rule v1.Recurrence, completedAt time.Time) *bus.Event {
	payload := &events.TaskCompletedPayload{
		TaskID:      taskID,
		Title:       "water plants",
		Recurrence:  string(rule),
		CompletedAt: completedAt,
	}
	return bus.NewEvent(events.TaskCompleted, events.SourceAPI, "user-1", payload.ToMap())
}

func TestHandleCreatesNextOccurrence(t *testing.T) {
	_, api, memBus, _ := newTestWorker(t)

	now := time.Now().UTC()
	due := now.Add(-2 * time.Hour)
	remind := due.Add(-time.Hour)
	api.tasks["task-1"] = &v1.Task{
		ID:          "task-1",
		Title:       "water plants",
		Description: "the ficus too",
		Priority:    v1.PriorityHigh,
		DueAt:       &due,
		RemindAt:    &remind,
		Recurrence:  v1.RecurrenceDaily,
		Tags:        []string{"home"},
	}

	err := memBus.Publish(context.Background(), events.TopicTaskEvents,
		completedEvent("task-1", v1.RecurrenceDaily, now))
	require.NoError(t, err)

	require.Len(t, api.created, 1)
	next := api.created[0]
	assert.Equal(t, "water plants", next.Title)
	assert.Equal(t, "the ficus too", next.Description)
	assert.Equal(t, v1.PriorityHigh, next.Priority)
	assert.Equal(t, v1.RecurrenceDaily, next.Recurrence)
	assert.Equal(t, []string{"home"}, next.Tags)
	require.NotNil(t, next.ParentTaskID)
	assert.Equal(t, "task-1", *next.ParentTaskID)

	require.NotNil(t, next.DueAt)
	assert.True(t, next.DueAt.After(now))
	require.NotNil(t, next.RemindAt)
	assert.Equal(t, time.Hour, next.DueAt.Sub(*next.RemindAt))
}

func TestHandleDeduplicatesByEventID(t *testing.T) {
	_, api, memBus, _ := newTestWorker(t)

	now := time.Now().UTC()
	api.tasks["task-1"] = &v1.Task{ID: "task-1", Title: "t", Recurrence: v1.RecurrenceWeekly}

	event := completedEvent("task-1", v1.RecurrenceWeekly, now)
	ctx := context.Background()
	require.NoError(t, memBus.Publish(ctx, events.TopicTaskEvents, event))
	require.NoError(t, memBus.Publish(ctx, events.TopicTaskEvents, event))

	assert.Len(t, api.created, 1)
}

func TestHandleIgnoresNonRecurring(t *testing.T) {
	_, api, memBus, store := newTestWorker(t)

	event := completedEvent("task-1", v1.RecurrenceNone, time.Now().UTC())
	require.NoError(t, memBus.Publish(context.Background(), events.TopicTaskEvents, event))

	assert.Empty(t, api.created)
	seen, err := store.Seen(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	_, api, memBus, store := newTestWorker(t)

	event := bus.NewEvent(events.ReminderDue, events.SourceScheduler, "user-1", nil)
	require.NoError(t, memBus.Publish(context.Background(), events.TopicTaskEvents, event))

	assert.Empty(t, api.created)
	seen, err := store.Seen(context.Background(), event.ID)
	require.NoError(t, err)
	assert.False(t, seen)
}

// A task deleted between completion and delivery is acknowledged without a
// successor.
func TestHandleTaskDeleted(t *testing.T) {
	_, api, memBus, store := newTestWorker(t)

	event := completedEvent("gone", v1.RecurrenceDaily, time.Now().UTC())
	require.NoError(t, memBus.Publish(context.Background(), events.TopicTaskEvents, event))

	assert.Empty(t, api.created)
	seen, err := store.Seen(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

// The task's current rule wins over the payload snapshot: a rule cleared
// after completion suppresses the successor.
func TestHandleRecurrenceClearedOnTask(t *testing.T) {
	_, api, memBus, _ := newTestWorker(t)

	api.tasks["task-1"] = &v1.Task{ID: "task-1", Title: "t", Recurrence: v1.RecurrenceNone}

	event := completedEvent("task-1", v1.RecurrenceDaily, time.Now().UTC())
	require.NoError(t, memBus.Publish(context.Background(), events.TopicTaskEvents, event))

	assert.Empty(t, api.created)
}

// Transient failures leave the event unmarked and surface the error so the
// transport redelivers; the retry then succeeds.
func TestHandleTransientErrorRetries(t *testing.T) {
	svc, api, _, store := newTestWorker(t)

	api.tasks["task-1"] = &v1.Task{ID: "task-1", Title: "t", Recurrence: v1.RecurrenceDaily}
	api.getErr = apperr.Transientf("task API unreachable")

	event := completedEvent("task-1", v1.RecurrenceDaily, time.Now().UTC())
	ctx := context.Background()

	err := svc.handle(ctx, event)
	require.Error(t, err)
	assert.Empty(t, api.created)
	seen, err := store.Seen(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, seen)

	api.getErr = nil
	require.NoError(t, svc.handle(ctx, event))
	assert.Len(t, api.created, 1)
}

// Permanent rejections are not retried; redelivering a request the API
// already refused cannot succeed.
func TestHandlePermanentRejectionAcked(t *testing.T) {
	svc, api, _, store := newTestWorker(t)

	api.tasks["task-1"] = &v1.Task{ID: "task-1", Title: "t", Recurrence: v1.RecurrenceDaily}
	api.createErr = apperr.Permanentf("task API rejected request")

	event := completedEvent("task-1", v1.RecurrenceDaily, time.Now().UTC())
	ctx := context.Background()

	require.NoError(t, svc.handle(ctx, event))
	assert.Empty(t, api.created)
	seen, err := store.Seen(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHandleMalformedPayloadAcked(t *testing.T) {
	svc, api, _, store := newTestWorker(t)

	event := bus.NewEvent(events.TaskCompleted, events.SourceAPI, "user-1", map[string]any{"title": "no id"})
	ctx := context.Background()

	require.NoError(t, svc.handle(ctx, event))
	assert.Empty(t, api.created)
	seen, err := store.Seen(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

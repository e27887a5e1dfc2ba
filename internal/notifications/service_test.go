package notifications

import (
	"context"
	"os"
	"path/filepath"
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
	"github.com/taskloop/taskloop/internal/notifications/providers"
)

type fakeSender struct {
	sent []providers.Email
	err  error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, email providers.Email) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, email)
	return nil
}

func newTestNotifier(t *testing.T) (*Service, *fakeSender, *bus.MemoryEventBus, *processed.Store) {
	t.Helper()

	conn, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	store, err := processed.NewStore(db.NewPool(conn, conn), "notifier-test")
	require.NoError(t, err)

	sender := &fakeSender{}
	memBus := bus.NewMemoryEventBus(logger.Default())
	t.Cleanup(memBus.Close)

	svc := NewService(memBus, store, sender, DefaultTemplates(), "notifier-test", logger.Default())
	_, err = svc.Start()
	require.NoError(t, err)
	return svc, sender, memBus, store
}

func reminderEvent(email string, dueAt *time.Time) *bus.Event {
	payload := &events.ReminderDuePayload{
		TaskID:     "task-1",
		Title:      "water plants",
		OwnerEmail: email,
		RemindAt:   time.Now().UTC(),
		DueAt:      dueAt,
	}
	return bus.NewEvent(events.ReminderDue, events.SourceScheduler, "user-1", payload.ToMap())
}

func TestHandleDeliversNotification(t *testing.T) {
	_, sender, memBus, _ := newTestNotifier(t)

	due := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	err := memBus.Publish(context.Background(), events.TopicReminders, reminderEvent("one@example.com", &due))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	email := sender.sent[0]
	assert.Equal(t, "one@example.com", email.To)
	assert.Equal(t, "Reminder: water plants", email.Subject)
	assert.Contains(t, email.Body, "water plants")
	assert.Contains(t, email.Body, "due Sun, 01 Mar 2026")
}

func TestHandleDeduplicatesByEventID(t *testing.T) {
	_, sender, memBus, _ := newTestNotifier(t)

	event := reminderEvent("one@example.com", nil)
	ctx := context.Background()
	require.NoError(t, memBus.Publish(ctx, events.TopicReminders, event))
	require.NoError(t, memBus.Publish(ctx, events.TopicReminders, event))

	assert.Len(t, sender.sent, 1)
}

func TestHandleMissingRecipientAcked(t *testing.T) {
	_, sender, memBus, store := newTestNotifier(t)

	event := reminderEvent("", nil)
	require.NoError(t, memBus.Publish(context.Background(), events.TopicReminders, event))

	assert.Empty(t, sender.sent)
	seen, err := store.Seen(context.Background(), event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

// A transient sender failure leaves the event unmarked so the transport
// redelivers; the retry then succeeds.
func TestHandleTransientFailureRetries(t *testing.T) {
	svc, sender, _, store := newTestNotifier(t)

	sender.err = apperr.Transientf("smtp server busy")
	event := reminderEvent("one@example.com", nil)
	ctx := context.Background()

	require.Error(t, svc.handle(ctx, event))
	seen, err := store.Seen(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, seen)

	sender.err = nil
	require.NoError(t, svc.handle(ctx, event))
	assert.Len(t, sender.sent, 1)
}

func TestHandlePermanentFailureAcked(t *testing.T) {
	svc, sender, _, store := newTestNotifier(t)

	sender.err = apperr.Permanentf("smtp server rejected message")
	event := reminderEvent("one@example.com", nil)
	ctx := context.Background()

	require.NoError(t, svc.handle(ctx, event))
	assert.Empty(t, sender.sent)
	seen, err := store.Seen(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	svc, sender, _, _ := newTestNotifier(t)

	event := bus.NewEvent(events.TaskCompleted, events.SourceAPI, "user-1", nil)
	require.NoError(t, svc.handle(context.Background(), event))
	assert.Empty(t, sender.sent)
}

func TestLoadTemplatesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reminder_due:\n  subject: \"Heads up: {{.Title}}\"\n"), 0o644))

	templates, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, "Heads up: {{.Title}}", templates.ReminderDue.Subject)
	// Body keeps the built-in default.
	assert.Equal(t, DefaultTemplates().ReminderDue.Body, templates.ReminderDue.Body)

	// Empty path selects the defaults.
	templates, err = LoadTemplates("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTemplates(), templates)
}

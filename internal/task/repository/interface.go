// Package repository persists tasks, tags, and the event outbox.
package repository

import (
	"context"
	"time"

	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/task/models"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Sort keys accepted by ListTasks.
const (
	SortByCreatedAt = "created_at"
	SortByUpdatedAt = "updated_at"
	SortByDueAt     = "due_at"
	SortByPriority  = "priority"
	SortByTitle     = "title"
)

// Filter narrows and orders a task listing. Zero values mean "no
// constraint". The service validates sort keys before they reach the
// repository.
type Filter struct {
	Completed *bool
	Priority  v1.Priority
	Tag       string
	Overdue   bool
	DueBefore *time.Time
	Search    string
	SortBy    string
	SortOrder string
	Now       time.Time
}

// OutboxInsert is an event row written atomically with a task mutation.
type OutboxInsert struct {
	EventID   string
	Topic     string
	EventType string
	OwnerID   string
	Payload   []byte
}

// OutboxFunc builds the outbox row for a completed task. It is invoked
// inside the toggle transaction, only on the incomplete-to-complete
// transition. A nil return skips the insert.
type OutboxFunc func(task *models.Task) *OutboxInsert

// Repository defines the persistence operations for the task domain. It
// also implements events.OutboxStore so the outbox publisher can drain
// events written by task mutations.
type Repository interface {
	events.OutboxStore

	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, userID, id string) (*models.Task, error)
	ListTasks(ctx context.Context, userID string, filter *Filter) ([]*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	DeleteTask(ctx context.Context, userID, id string) error

	// ToggleComplete atomically flips the completion state and, on the
	// incomplete-to-complete transition, writes the outbox row returned
	// by mkOutbox in the same transaction.
	ToggleComplete(ctx context.Context, userID, id string, mkOutbox OutboxFunc) (*models.Task, error)

	AddTag(ctx context.Context, userID, taskID, name string) error
	RemoveTag(ctx context.Context, userID, taskID, name string) error
	ListTags(ctx context.Context, userID string) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, userID, tagID string) error

	// ClaimDueReminders flips reminder_sent on up to limit due, unsent,
	// incomplete reminders and returns the claimed rows. The flip is
	// durable before the caller publishes anything, so reminders fire at
	// most once.
	ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.ReminderClaim, error)

	// UserEmails resolves owner emails for claimed reminders.
	UserEmails(ctx context.Context, userIDs []string) (map[string]string, error)
}

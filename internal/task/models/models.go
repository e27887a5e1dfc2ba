// Package models defines the task domain entities.
package models

import (
	"time"

	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Task is a user-owned todo item. Tags are loaded separately from the
// association table.
type Task struct {
	ID           string        `db:"id"`
	UserID       string        `db:"user_id"`
	Title        string        `db:"title"`
	Description  string        `db:"description"`
	Completed    bool          `db:"completed"`
	CompletedAt  *time.Time    `db:"completed_at"`
	Priority     v1.Priority   `db:"priority"`
	DueAt        *time.Time    `db:"due_at"`
	RemindAt     *time.Time    `db:"remind_at"`
	ReminderSent bool          `db:"reminder_sent"`
	Recurrence   v1.Recurrence `db:"recurrence"`
	ParentTaskID *string       `db:"parent_task_id"`
	CreatedAt    time.Time     `db:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at"`

	Tags []string `db:"-"`
}

// IsOverdue reports whether the task has a due date in the past and is not
// completed.
func (t *Task) IsOverdue(now time.Time) bool {
	return !t.Completed && t.DueAt != nil && t.DueAt.Before(now)
}

// ToAPI converts the task to its API representation. now anchors the
// is_overdue computation.
func (t *Task) ToAPI(now time.Time) *v1.Task {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return &v1.Task{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Completed:    t.Completed,
		CompletedAt:  t.CompletedAt,
		Priority:     t.Priority,
		DueAt:        t.DueAt,
		RemindAt:     t.RemindAt,
		ReminderSent: t.ReminderSent,
		Recurrence:   t.Recurrence,
		ParentTaskID: t.ParentTaskID,
		Tags:         tags,
		IsOverdue:    t.IsOverdue(now),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Tag is a user-scoped label.
type Tag struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// ToAPI converts the tag to its API representation.
func (t *Tag) ToAPI() *v1.Tag {
	return &v1.Tag{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// ReminderClaim is a reminder row claimed by the sweep. The reminder_sent
// flag is already flipped when a claim is returned.
type ReminderClaim struct {
	TaskID   string     `db:"id"`
	UserID   string     `db:"user_id"`
	Title    string     `db:"title"`
	RemindAt time.Time  `db:"remind_at"`
	DueAt    *time.Time `db:"due_at"`
}

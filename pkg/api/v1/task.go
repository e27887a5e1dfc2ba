package v1

import "time"

// Priority is a task priority level.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Rank orders priorities for sorting: low < medium < high.
func (p Priority) Rank() int {
	switch p {
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	default:
		return 0
	}
}

// Recurrence is a task repetition rule applied when the task is completed.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is a known recurrence rule.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// Repeats reports whether completing the task should spawn a successor.
func (r Recurrence) Repeats() bool {
	return r.Valid() && r != RecurrenceNone
}

// Task is the task representation exchanged over the API.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Completed    bool       `json:"completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Priority     Priority   `json:"priority"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	RemindAt     *time.Time `json:"remind_at,omitempty"`
	ReminderSent bool       `json:"reminder_sent"`
	Recurrence   Recurrence `json:"recurrence"`
	ParentTaskID *string    `json:"parent_task_id,omitempty"`
	Tags         []string   `json:"tags"`
	IsOverdue    bool       `json:"is_overdue"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Tag is a user-scoped label.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTaskRequest creates a new task. Priority defaults to medium and
// recurrence to none when omitted.
type CreateTaskRequest struct {
	Title        string     `json:"title" binding:"required"`
	Description  string     `json:"description"`
	Priority     Priority   `json:"priority"`
	DueAt        *time.Time `json:"due_at"`
	RemindAt     *time.Time `json:"remind_at"`
	Recurrence   Recurrence `json:"recurrence"`
	ParentTaskID *string    `json:"parent_task_id"`
	Tags         []string   `json:"tags"`
}

// UpdateTaskRequest partially updates a task. Nil fields are left untouched;
// the Clear flags reset the corresponding optional field.
type UpdateTaskRequest struct {
	Title         *string     `json:"title"`
	Description   *string     `json:"description"`
	Priority      *Priority   `json:"priority"`
	DueAt         *time.Time  `json:"due_at"`
	ClearDueAt    bool        `json:"clear_due_at"`
	RemindAt      *time.Time  `json:"remind_at"`
	ClearRemindAt bool        `json:"clear_remind_at"`
	Recurrence    *Recurrence `json:"recurrence"`
}

// SetReminderRequest sets or replaces a task reminder.
type SetReminderRequest struct {
	RemindAt time.Time `json:"remind_at" binding:"required"`
}

// TagRequest names a tag to attach or detach.
type TagRequest struct {
	Name string `json:"name" binding:"required"`
}

// ListTasksResponse wraps a task listing.
type ListTasksResponse struct {
	Tasks []*Task `json:"tasks"`
	Count int     `json:"count"`
}

// ListTagsResponse wraps a tag listing.
type ListTagsResponse struct {
	Tags []*Tag `json:"tags"`
}

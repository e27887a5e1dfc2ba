// Package events defines the topics, event types, and payload schemas of the
// Taskloop event system, plus the transactional outbox publisher.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics.
const (
	// TopicTaskEvents carries task lifecycle events consumed by the
	// recurrence worker and the websocket gateway.
	TopicTaskEvents = "task-events"

	// TopicReminders carries due-reminder events consumed by the
	// notification worker and the websocket gateway.
	TopicReminders = "reminders"
)

// Event types.
const (
	TaskCompleted = "task.completed"
	ReminderDue   = "reminder.due"
)

// Event sources.
const (
	SourceAPI       = "taskloop-api"
	SourceScheduler = "taskloop-scheduler"
)

// TaskCompletedPayload is the payload of a task.completed event.
type TaskCompletedPayload struct {
	TaskID       string     `json:"taskId"`
	Title        string     `json:"title"`
	Priority     string     `json:"priority"`
	Recurrence   string     `json:"recurrence"`
	CompletedAt  time.Time  `json:"completedAt"`
	DueAt        *time.Time `json:"dueAt,omitempty"`
	ParentTaskID *string    `json:"parentTaskId,omitempty"`
}

// ReminderDuePayload is the payload of a reminder.due event.
type ReminderDuePayload struct {
	TaskID     string     `json:"taskId"`
	Title      string     `json:"title"`
	OwnerEmail string     `json:"ownerEmail"`
	RemindAt   time.Time  `json:"remindAt"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
}

// ToMap converts the payload to the generic envelope form.
func (p *TaskCompletedPayload) ToMap() map[string]any {
	return toMap(p)
}

// ToMap converts the payload to the generic envelope form.
func (p *ReminderDuePayload) ToMap() map[string]any {
	return toMap(p)
}

// DecodeTaskCompleted parses a task.completed payload from an envelope.
func DecodeTaskCompleted(payload map[string]any) (*TaskCompletedPayload, error) {
	var p TaskCompletedPayload
	if err := decode(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode task.completed payload: %w", err)
	}
	if p.TaskID == "" {
		return nil, fmt.Errorf("task.completed payload missing taskId")
	}
	return &p, nil
}

// DecodeReminderDue parses a reminder.due payload from an envelope.
func DecodeReminderDue(payload map[string]any) (*ReminderDuePayload, error) {
	var p ReminderDuePayload
	if err := decode(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode reminder.due payload: %w", err)
	}
	if p.TaskID == "" {
		return nil, fmt.Errorf("reminder.due payload missing taskId")
	}
	return &p, nil
}

// toMap round-trips a typed payload through JSON into the map form the
// envelope carries.
func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func decode(payload map[string]any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

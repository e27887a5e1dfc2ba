// Package service implements the task operations behind the HTTP API and
// the agent tools.
package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
	"github.com/taskloop/taskloop/internal/task/models"
	"github.com/taskloop/taskloop/internal/task/repository"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Validation bounds.
const (
	maxTitleLength       = 500
	maxDescriptionLength = 2000
	maxTagLength         = 100
)

// Service implements the task domain operations. Every operation takes the
// acting user id; rows owned by other users are invisible and report
// NotFound.
type Service struct {
	repo          repository.Repository
	bus           bus.EventBus
	eventsEnabled bool
	logger        *logger.Logger
}

// NewService creates a task service. When eventsEnabled is false, task
// completion writes no outbox rows and the reminder sweep publishes
// nothing.
func NewService(repo repository.Repository, eventBus bus.EventBus, eventsEnabled bool, log *logger.Logger) *Service {
	return &Service{
		repo:          repo,
		bus:           eventBus,
		eventsEnabled: eventsEnabled,
		logger:        log.WithFields(zap.String("component", "task-service")),
	}
}

// Repository exposes the underlying repository; the outbox publisher drains
// it directly.
func (s *Service) Repository() repository.Repository {
	return s.repo
}

// CreateTask validates and persists a new task.
func (s *Service) CreateTask(ctx context.Context, userID string, req *v1.CreateTaskRequest) (*models.Task, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = v1.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperr.Validationf("invalid priority: %s", priority)
	}

	recurrence := req.Recurrence
	if recurrence == "" {
		recurrence = v1.RecurrenceNone
	}
	if !recurrence.Valid() {
		return nil, apperr.Validationf("invalid recurrence: %s", recurrence)
	}

	if req.RemindAt != nil && !req.RemindAt.After(time.Now().UTC()) {
		return nil, apperr.Validationf("remind_at must be in the future")
	}

	if req.ParentTaskID != nil && *req.ParentTaskID != "" {
		if _, err := s.repo.GetTask(ctx, userID, *req.ParentTaskID); err != nil {
			return nil, err
		}
	}

	tags, err := normalizeTags(req.Tags)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:           uuid.NewString(),
		UserID:       userID,
		Title:        title,
		Description:  strings.TrimSpace(req.Description),
		Priority:     priority,
		DueAt:        normalizeTime(req.DueAt),
		RemindAt:     normalizeTime(req.RemindAt),
		Recurrence:   recurrence,
		ParentTaskID: req.ParentTaskID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Tags:         tags,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("user_id", userID))
	return task, nil
}

// GetTask returns a task owned by userID.
func (s *Service) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	return s.repo.GetTask(ctx, userID, id)
}

// ListTasks returns the user's tasks narrowed by filter. Sort fields are
// validated here; the default order is newest first.
func (s *Service) ListTasks(ctx context.Context, userID string, filter *repository.Filter) ([]*models.Task, error) {
	if filter == nil {
		filter = &repository.Filter{}
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, apperr.Validationf("invalid priority: %s", filter.Priority)
	}
	switch filter.SortBy {
	case "", repository.SortByCreatedAt, repository.SortByUpdatedAt,
		repository.SortByDueAt, repository.SortByPriority, repository.SortByTitle:
	default:
		return nil, apperr.Validationf("invalid sort field: %s", filter.SortBy)
	}
	switch strings.ToLower(filter.SortOrder) {
	case "", "asc", "desc":
	default:
		return nil, apperr.Validationf("invalid sort order: %s", filter.SortOrder)
	}
	return s.repo.ListTasks(ctx, userID, filter)
}

// SearchTasks matches the query case-insensitively against titles and
// descriptions.
func (s *Service) SearchTasks(ctx context.Context, userID, query string) ([]*models.Task, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validationf("search query must not be empty")
	}
	return s.repo.ListTasks(ctx, userID, &repository.Filter{Search: query})
}

// UpdateTask applies a partial update. A request that changes nothing
// leaves the row, including updated_at, untouched.
func (s *Service) UpdateTask(ctx context.Context, userID, id string, req *v1.UpdateTaskRequest) (*models.Task, error) {
	task, err := s.repo.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated := *task
	if req.Title != nil {
		title, err := validateTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		updated.Title = title
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Priority != nil {
		if !req.Priority.Valid() {
			return nil, apperr.Validationf("invalid priority: %s", *req.Priority)
		}
		updated.Priority = *req.Priority
	}
	if req.Recurrence != nil {
		if !req.Recurrence.Valid() {
			return nil, apperr.Validationf("invalid recurrence: %s", *req.Recurrence)
		}
		updated.Recurrence = *req.Recurrence
	}
	if req.ClearDueAt {
		updated.DueAt = nil
	} else if req.DueAt != nil {
		updated.DueAt = normalizeTime(req.DueAt)
	}
	if req.ClearRemindAt {
		// Clearing the reminder re-arms nothing: the flag resets so a
		// future reminder can fire.
		updated.RemindAt = nil
		updated.ReminderSent = false
	} else if req.RemindAt != nil {
		if !req.RemindAt.After(time.Now().UTC()) {
			return nil, apperr.Validationf("remind_at must be in the future")
		}
		updated.RemindAt = normalizeTime(req.RemindAt)
		updated.ReminderSent = false
	}

	if taskUnchanged(task, &updated) {
		return task, nil
	}

	updated.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateTask(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, userID, id string) error {
	return s.repo.DeleteTask(ctx, userID, id)
}

// ToggleComplete flips the completion state. Completing a task emits a
// task.completed event through the outbox, atomically with the state
// change.
func (s *Service) ToggleComplete(ctx context.Context, userID, id string) (*models.Task, error) {
	var mkOutbox repository.OutboxFunc
	if s.eventsEnabled {
		mkOutbox = func(task *models.Task) *repository.OutboxInsert {
			payload := events.TaskCompletedPayload{
				TaskID:       task.ID,
				Title:        task.Title,
				Priority:     string(task.Priority),
				Recurrence:   string(task.Recurrence),
				CompletedAt:  *task.CompletedAt,
				DueAt:        task.DueAt,
				ParentTaskID: task.ParentTaskID,
			}
			data, err := json.Marshal(&payload)
			if err != nil {
				s.logger.Error("failed to marshal completion payload",
					zap.String("task_id", task.ID), zap.Error(err))
				return nil
			}
			return &repository.OutboxInsert{
				EventID:   uuid.NewString(),
				Topic:     events.TopicTaskEvents,
				EventType: events.TaskCompleted,
				OwnerID:   task.UserID,
				Payload:   data,
			}
		}
	}

	task, err := s.repo.ToggleComplete(ctx, userID, id, mkOutbox)
	if err != nil {
		return nil, err
	}

	s.logger.Info("task toggled",
		zap.String("task_id", task.ID),
		zap.String("user_id", userID),
		zap.Bool("completed", task.Completed))
	return task, nil
}

// SetReminder sets or replaces the task reminder and re-arms it.
func (s *Service) SetReminder(ctx context.Context, userID, id string, remindAt time.Time) (*models.Task, error) {
	if !remindAt.After(time.Now().UTC()) {
		return nil, apperr.Validationf("remind_at must be in the future")
	}

	task, err := s.repo.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	utc := remindAt.UTC()
	task.RemindAt = &utc
	task.ReminderSent = false
	task.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// AddTag attaches a tag to a task.
func (s *Service) AddTag(ctx context.Context, userID, taskID, name string) (*models.Task, error) {
	normalized, err := normalizeTag(name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.AddTag(ctx, userID, taskID, normalized); err != nil {
		return nil, err
	}
	return s.repo.GetTask(ctx, userID, taskID)
}

// RemoveTag detaches a tag from a task.
func (s *Service) RemoveTag(ctx context.Context, userID, taskID, name string) (*models.Task, error) {
	normalized, err := normalizeTag(name)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RemoveTag(ctx, userID, taskID, normalized); err != nil {
		return nil, err
	}
	return s.repo.GetTask(ctx, userID, taskID)
}

// ListTags returns the user's tags.
func (s *Service) ListTags(ctx context.Context, userID string) ([]*models.Tag, error) {
	return s.repo.ListTags(ctx, userID)
}

// DeleteTag removes a tag everywhere.
func (s *Service) DeleteTag(ctx context.Context, userID, tagID string) error {
	return s.repo.DeleteTag(ctx, userID, tagID)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.Validationf("title must not be empty")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", apperr.Validationf("title must be at most %d characters", maxTitleLength)
	}
	return title, nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return apperr.Validationf("description must be at most %d characters", maxDescriptionLength)
	}
	return nil
}

func normalizeTag(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", apperr.Validationf("tag name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxTagLength {
		return "", apperr.Validationf("tag name must be at most %d characters", maxTagLength)
	}
	return name, nil
}

// normalizeTags casefolds, deduplicates, and validates a tag list.
func normalizeTags(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	var tags []string
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		normalized, err := normalizeTag(name)
		if err != nil {
			return nil, err
		}
		if !seen[normalized] {
			seen[normalized] = true
			tags = append(tags, normalized)
		}
	}
	return tags, nil
}

func normalizeTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

// taskUnchanged compares the fields a partial update can touch.
func taskUnchanged(a, b *models.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Priority == b.Priority &&
		a.Recurrence == b.Recurrence &&
		a.ReminderSent == b.ReminderSent &&
		timeEqual(a.DueAt, b.DueAt) &&
		timeEqual(a.RemindAt, b.RemindAt)
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

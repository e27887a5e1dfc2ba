package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/dates"
	"github.com/taskloop/taskloop/internal/task/models"
	"github.com/taskloop/taskloop/internal/task/repository"
	taskservice "github.com/taskloop/taskloop/internal/task/service"
	v1 "github.com/taskloop/taskloop/pkg/api/v1"
)

// Result is the uniform tool output. Every execution produces a result,
// never an error: failures are reported to the model as success=false so
// the turn can continue.
type Result map[string]any

// Registry binds the tool surface to a task service and executes calls on
// behalf of a user.
type Registry struct {
	tasks  *taskservice.Service
	logger *logger.Logger
}

// NewRegistry creates a tool registry.
func NewRegistry(tasks *taskservice.Service, log *logger.Logger) *Registry {
	return &Registry{
		tasks:  tasks,
		logger: log.WithFields(zap.String("component", "tool-registry")),
	}
}

// Knows reports whether name is a registered tool.
func (r *Registry) Knows(name string) bool {
	_, ok := r.handlers()[name]
	return ok
}

// Execute runs the named tool with raw JSON arguments for userID.
func (r *Registry) Execute(ctx context.Context, userID, name string, args json.RawMessage) Result {
	r.logger.Info("executing tool",
		zap.String("tool", name),
		zap.String("user_id", userID))

	handler, ok := r.handlers()[name]
	if !ok {
		return failure(fmt.Sprintf("Unknown tool: %s", name))
	}

	result := handler(ctx, userID, args)
	if success, _ := result["success"].(bool); !success {
		r.logger.Warn("tool reported failure",
			zap.String("tool", name),
			zap.Any("message", result["message"]))
	}
	return result
}

type toolHandler func(ctx context.Context, userID string, args json.RawMessage) Result

func (r *Registry) handlers() map[string]toolHandler {
	return map[string]toolHandler{
		"add_task":           r.addTask,
		"list_tasks":         r.listTasks,
		"complete_task":      r.completeTask,
		"update_task":        r.updateTask,
		"delete_task":        r.deleteTask,
		"set_priority":       r.setPriority,
		"filter_by_priority": r.filterByPriority,
		"add_tag":            r.addTag,
		"remove_tag":         r.removeTag,
		"filter_by_tag":      r.filterByTag,
		"set_due_date":       r.setDueDate,
		"show_overdue":       r.showOverdue,
		"search_tasks":       r.searchTasks,
		"combined_filter":    r.combinedFilter,
		"sort_tasks":         r.sortTasks,
		"set_reminder":       r.setReminder,
		"set_recurrence":     r.setRecurrence,
	}
}

func (r *Registry) addTask(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Priority    string   `json:"priority"`
		DueDate     string   `json:"due_date"`
		Tags        []string `json:"tags"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	req := &v1.CreateTaskRequest{
		Title:       in.Title,
		Description: in.Description,
		Priority:    v1.Priority(strings.ToLower(in.Priority)),
		Tags:        in.Tags,
	}
	if in.DueDate != "" {
		due, err := dates.Parse(in.DueDate, time.Now())
		if err != nil {
			return failure(err.Error())
		}
		req.DueAt = &due
	}

	task, err := r.tasks.CreateTask(ctx, userID, req)
	if err != nil {
		return r.failureFrom("Failed to create task", err)
	}
	return successTask(fmt.Sprintf("Task '%s' created successfully.", task.Title), task)
}

type listArgs struct {
	Completed *bool  `json:"completed"`
	Priority  string `json:"priority"`
	Tag       string `json:"tag"`
	Overdue   *bool  `json:"overdue"`
	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`
}

func (a *listArgs) filter() *repository.Filter {
	f := &repository.Filter{
		Priority:  v1.Priority(strings.ToLower(a.Priority)),
		Tag:       a.Tag,
		SortBy:    a.SortBy,
		SortOrder: a.SortOrder,
		Completed: a.Completed,
		Now:       time.Now().UTC(),
	}
	if a.Overdue != nil {
		f.Overdue = *a.Overdue
	}
	return f
}

func (r *Registry) listTasks(ctx context.Context, userID string, args json.RawMessage) Result {
	var in listArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	tasks, err := r.tasks.ListTasks(ctx, userID, in.filter())
	if err != nil {
		return r.failureFrom("Failed to list tasks", err)
	}
	return successList(fmt.Sprintf("Found %d tasks", len(tasks)), tasks)
}

func (r *Registry) completeTask(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to complete task", err)
	}
	if !task.Completed {
		if task, err = r.tasks.ToggleComplete(ctx, userID, task.ID); err != nil {
			return r.failureFrom("Failed to complete task", err)
		}
	}
	return successTask(fmt.Sprintf("Task '%s' marked as completed.", task.Title), task)
}

func (r *Registry) updateTask(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string  `json:"task_identifier"`
		Title          *string `json:"title"`
		Description    *string `json:"description"`
		Priority       *string `json:"priority"`
		DueDate        *string `json:"due_date"`
		Recurrence     *string `json:"recurrence"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to update task", err)
	}

	req := &v1.UpdateTaskRequest{Title: in.Title, Description: in.Description}
	if in.Priority != nil {
		p := v1.Priority(strings.ToLower(*in.Priority))
		req.Priority = &p
	}
	if in.Recurrence != nil {
		rec := v1.Recurrence(strings.ToLower(*in.Recurrence))
		req.Recurrence = &rec
	}
	if in.DueDate != nil {
		due, err := dates.Parse(*in.DueDate, time.Now())
		if err != nil {
			return failure(err.Error())
		}
		req.DueAt = &due
	}

	task, err = r.tasks.UpdateTask(ctx, userID, task.ID, req)
	if err != nil {
		return r.failureFrom("Failed to update task", err)
	}
	return successTask(fmt.Sprintf("Task '%s' updated.", task.Title), task)
}

func (r *Registry) deleteTask(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to delete task", err)
	}
	if err := r.tasks.DeleteTask(ctx, userID, task.ID); err != nil {
		return r.failureFrom("Failed to delete task", err)
	}
	return success(fmt.Sprintf("Task '%s' deleted.", task.Title))
}

func (r *Registry) setPriority(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		Priority       string `json:"priority"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	priority := v1.Priority(strings.ToLower(in.Priority))
	if !priority.Valid() {
		return failure(fmt.Sprintf("Invalid priority '%s'. Must be low, medium, or high.", in.Priority))
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to set priority", err)
	}
	task, err = r.tasks.UpdateTask(ctx, userID, task.ID, &v1.UpdateTaskRequest{Priority: &priority})
	if err != nil {
		return r.failureFrom("Failed to set priority", err)
	}
	return successTask(fmt.Sprintf("Set priority of '%s' to %s.", task.Title, priority), task)
}

func (r *Registry) filterByPriority(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		Priority string `json:"priority"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	priority := v1.Priority(strings.ToLower(in.Priority))
	if !priority.Valid() {
		return failure(fmt.Sprintf("Invalid priority '%s'. Must be low, medium, or high.", in.Priority))
	}

	tasks, err := r.tasks.ListTasks(ctx, userID, &repository.Filter{Priority: priority})
	if err != nil {
		return r.failureFrom("Failed to filter by priority", err)
	}
	return successList(fmt.Sprintf("Found %d %s priority tasks.", len(tasks), priority), tasks)
}

func (r *Registry) addTag(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		Tag            string `json:"tag"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(in.Tag) == "" {
		return failure("Tag name cannot be empty.")
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to add tag", err)
	}
	task, err = r.tasks.AddTag(ctx, userID, task.ID, in.Tag)
	if err != nil {
		return r.failureFrom("Failed to add tag", err)
	}
	return successTask(fmt.Sprintf("Added tag '%s' to '%s'.", strings.TrimSpace(in.Tag), task.Title), task)
}

func (r *Registry) removeTag(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		Tag            string `json:"tag"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(in.Tag) == "" {
		return failure("Tag name cannot be empty.")
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to remove tag", err)
	}
	task, err = r.tasks.RemoveTag(ctx, userID, task.ID, in.Tag)
	if err != nil {
		return r.failureFrom("Failed to remove tag", err)
	}
	return successTask(fmt.Sprintf("Removed tag '%s' from '%s'.", strings.TrimSpace(in.Tag), task.Title), task)
}

func (r *Registry) filterByTag(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		Tag string `json:"tag"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	tasks, err := r.tasks.ListTasks(ctx, userID, &repository.Filter{Tag: in.Tag})
	if err != nil {
		return r.failureFrom("Failed to filter by tag", err)
	}
	return successList(fmt.Sprintf("Found %d tasks with tag '%s'.", len(tasks), in.Tag), tasks)
}

func (r *Registry) setDueDate(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		DueDate        string `json:"due_date"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(in.DueDate) == "" {
		return failure("Due date cannot be empty. Use a date like 'tomorrow', 'next Monday', or 'January 15'.")
	}

	due, err := dates.Parse(in.DueDate, time.Now())
	if err != nil {
		return failure(err.Error())
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to set due date", err)
	}
	task, err = r.tasks.UpdateTask(ctx, userID, task.ID, &v1.UpdateTaskRequest{DueAt: &due})
	if err != nil {
		return r.failureFrom("Failed to set due date", err)
	}
	return successTask(fmt.Sprintf("Set due date of '%s' to %s.",
		task.Title, due.Format("Monday, January 2, 2006")), task)
}

func (r *Registry) showOverdue(ctx context.Context, userID string, _ json.RawMessage) Result {
	tasks, err := r.tasks.ListTasks(ctx, userID, &repository.Filter{
		Overdue: true,
		Now:     time.Now().UTC(),
	})
	if err != nil {
		return r.failureFrom("Failed to get overdue tasks", err)
	}
	if len(tasks) == 0 {
		return successList("No overdue tasks found. Great job staying on track!", tasks)
	}
	return successList(fmt.Sprintf("Found %d overdue tasks.", len(tasks)), tasks)
}

func (r *Registry) searchTasks(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	tasks, err := r.tasks.SearchTasks(ctx, userID, in.Query)
	if err != nil {
		return r.failureFrom("Failed to search tasks", err)
	}
	if len(tasks) == 0 {
		return successList(fmt.Sprintf("No tasks found matching '%s'.", in.Query), tasks)
	}
	return successList(fmt.Sprintf("Found %d tasks matching '%s'.", len(tasks), in.Query), tasks)
}

func (r *Registry) combinedFilter(ctx context.Context, userID string, args json.RawMessage) Result {
	var in listArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	filter := in.filter()
	if filter.SortOrder == "" {
		filter.SortOrder = "desc"
	}
	tasks, err := r.tasks.ListTasks(ctx, userID, filter)
	if err != nil {
		return r.failureFrom("Failed to filter tasks", err)
	}

	var applied []string
	if in.Priority != "" {
		applied = append(applied, "priority="+in.Priority)
	}
	if in.Tag != "" {
		applied = append(applied, "tag="+in.Tag)
	}
	if in.Completed != nil {
		applied = append(applied, fmt.Sprintf("completed=%t", *in.Completed))
	}
	if in.Overdue != nil && *in.Overdue {
		applied = append(applied, "overdue=true")
	}
	desc := "none"
	if len(applied) > 0 {
		desc = strings.Join(applied, ", ")
	}
	return successList(fmt.Sprintf("Found %d tasks (filters: %s).", len(tasks), desc), tasks)
}

func (r *Registry) sortTasks(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		SortBy    string `json:"sort_by"`
		SortOrder string `json:"sort_order"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}
	if in.SortOrder == "" {
		in.SortOrder = "desc"
	}

	tasks, err := r.tasks.ListTasks(ctx, userID, &repository.Filter{
		SortBy:    in.SortBy,
		SortOrder: in.SortOrder,
	})
	if err != nil {
		return r.failureFrom("Failed to sort tasks", err)
	}
	return successList(fmt.Sprintf("Sorted %d tasks by %s (%s).", len(tasks), in.SortBy, in.SortOrder), tasks)
}

func (r *Registry) setReminder(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		RemindAt       string `json:"remind_at"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}
	if strings.TrimSpace(in.RemindAt) == "" {
		return failure("Reminder time cannot be empty. Use '1 hour before', 'tomorrow at 9am', etc.")
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to set reminder", err)
	}

	var remindAt time.Time
	if offset, ok := dates.ParseBefore(in.RemindAt); ok {
		if task.DueAt == nil {
			return failure("Cannot set relative reminder (like '1 hour before') because the task has no due date. Please set a due date first, or use an absolute time like 'tomorrow at 9am'.")
		}
		remindAt = task.DueAt.Add(-offset)
	} else {
		if remindAt, err = dates.Parse(in.RemindAt, time.Now()); err != nil {
			return failure(err.Error())
		}
	}

	task, err = r.tasks.SetReminder(ctx, userID, task.ID, remindAt)
	if err != nil {
		return r.failureFrom("Failed to set reminder", err)
	}
	return successTask(fmt.Sprintf("Reminder set for '%s' at %s.",
		task.Title, remindAt.Format("Monday, January 2, 2006 at 3:04 PM")), task)
}

func (r *Registry) setRecurrence(ctx context.Context, userID string, args json.RawMessage) Result {
	var in struct {
		TaskIdentifier string `json:"task_identifier"`
		Recurrence     string `json:"recurrence"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return failure("Invalid arguments: " + err.Error())
	}

	recurrence := v1.Recurrence(strings.ToLower(strings.TrimSpace(in.Recurrence)))
	if !recurrence.Valid() {
		return failure(fmt.Sprintf("Invalid recurrence '%s'. Must be none, daily, weekly, or monthly.", in.Recurrence))
	}

	task, err := r.findTask(ctx, userID, in.TaskIdentifier)
	if err != nil {
		return r.failureFrom("Failed to set recurrence", err)
	}
	task, err = r.tasks.UpdateTask(ctx, userID, task.ID, &v1.UpdateTaskRequest{Recurrence: &recurrence})
	if err != nil {
		return r.failureFrom("Failed to set recurrence", err)
	}

	msg := fmt.Sprintf("Set '%s' to repeat %s.", task.Title, recurrence)
	if recurrence == v1.RecurrenceNone {
		msg = fmt.Sprintf("Removed recurrence from '%s'.", task.Title)
	}
	return successTask(msg, task)
}

func success(message string) Result {
	return Result{"success": true, "message": message}
}

func successTask(message string, task *models.Task) Result {
	return Result{
		"success": true,
		"message": message,
		"task":    task.ToAPI(time.Now().UTC()),
	}
}

func successList(message string, tasks []*models.Task) Result {
	now := time.Now().UTC()
	list := make([]*v1.Task, len(tasks))
	for i, task := range tasks {
		list[i] = task.ToAPI(now)
	}
	return Result{
		"success": true,
		"message": message,
		"count":   len(list),
		"tasks":   list,
	}
}

func failure(message string) Result {
	return Result{"success": false, "message": message}
}

// failureFrom maps internal errors onto the tool result shape, attaching
// suggestions when the lookup produced them.
func (r *Registry) failureFrom(prefix string, err error) Result {
	var nf *notFoundError
	if errors.As(err, &nf) {
		result := failure(nf.message)
		if len(nf.suggestions) > 0 {
			result["suggestions"] = nf.suggestions
		}
		return result
	}
	return failure(prefix + ": " + err.Error())
}

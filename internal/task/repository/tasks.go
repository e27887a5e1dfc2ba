package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/db/dialect"
	"github.com/taskloop/taskloop/internal/task/models"
)

// CreateTask inserts a task and its tag associations in one transaction.
func (r *SQLRepository) CreateTask(ctx context.Context, task *models.Task) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			INSERT INTO tasks (
				id, user_id, title, description, completed, completed_at,
				priority, due_at, remind_at, reminder_sent, recurrence,
				parent_task_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, query,
			task.ID, task.UserID, task.Title, task.Description,
			task.Completed, task.CompletedAt, task.Priority, task.DueAt,
			task.RemindAt, task.ReminderSent, task.Recurrence,
			task.ParentTaskID, task.CreatedAt, task.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
		return r.setTaskTags(ctx, tx, task.UserID, task.ID, task.Tags)
	})
}

// GetTask returns a task owned by userID. Tasks owned by other users report
// NotFound.
func (r *SQLRepository) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	var task models.Task
	query := r.ro.Rebind(`SELECT * FROM tasks WHERE id = ? AND user_id = ?`)
	if err := r.ro.GetContext(ctx, &task, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("task not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if err := r.loadTags(ctx, []*models.Task{&task}); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns the tasks matching filter, ordered per its sort fields
// with the task id as a stable tiebreaker.
func (r *SQLRepository) ListTasks(ctx context.Context, userID string, filter *Filter) ([]*models.Task, error) {
	if filter == nil {
		filter = &Filter{}
	}
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	where := []string{"user_id = ?"}
	args := []any{userID}

	if filter.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *filter.Completed)
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, filter.Priority)
	}
	if filter.Overdue {
		where = append(where, "completed = ? AND due_at IS NOT NULL AND due_at < ?")
		args = append(args, false, now)
	}
	if filter.DueBefore != nil {
		where = append(where, "due_at IS NOT NULL AND due_at <= ?")
		args = append(args, *filter.DueBefore)
	}
	if filter.Search != "" {
		pattern := "%" + dialect.EscapeLike(filter.Search) + "%"
		where = append(where, "("+
			dialect.CaseInsensitiveLike(r.driver(), "title")+" OR "+
			dialect.CaseInsensitiveLike(r.driver(), "description")+")")
		args = append(args, pattern, pattern)
	}
	if filter.Tag != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM task_tag_associations a
			JOIN tags g ON g.id = a.tag_id
			WHERE a.task_id = tasks.id AND g.user_id = ? AND g.name = ?)`)
		args = append(args, userID, filter.Tag)
	}

	query := r.ro.Rebind(
		`SELECT * FROM tasks WHERE ` + strings.Join(where, " AND ") +
			` ORDER BY ` + orderClause(filter.SortBy, filter.SortOrder))

	var tasks []*models.Task
	if err := r.ro.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if err := r.loadTags(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// orderClause builds the ORDER BY expression. Sort keys are validated by
// the service; unknown keys fall back to created_at. A missing due date
// sorts as infinitely late: last when ascending, first when descending.
func orderClause(sortBy, sortOrder string) string {
	dir := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		dir = "ASC"
	}

	switch sortBy {
	case SortByDueAt:
		return "(due_at IS NULL) " + dir + ", due_at " + dir + ", id ASC"
	case SortByPriority:
		return "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 ELSE 1 END " +
			dir + ", id ASC"
	case SortByTitle:
		return "LOWER(title) " + dir + ", id ASC"
	case SortByUpdatedAt:
		return "updated_at " + dir + ", id ASC"
	default:
		return "created_at " + dir + ", id ASC"
	}
}

// UpdateTask writes the mutable task fields. The row must be owned by
// task.UserID.
func (r *SQLRepository) UpdateTask(ctx context.Context, task *models.Task) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			UPDATE tasks SET
				title = ?, description = ?, completed = ?, completed_at = ?,
				priority = ?, due_at = ?, remind_at = ?, reminder_sent = ?,
				recurrence = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`)
		result, err := tx.ExecContext(ctx, query,
			task.Title, task.Description, task.Completed, task.CompletedAt,
			task.Priority, task.DueAt, task.RemindAt, task.ReminderSent,
			task.Recurrence, task.UpdatedAt, task.ID, task.UserID)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			return apperr.NotFoundf("task not found: %s", task.ID)
		}
		return nil
	})
}

// DeleteTask removes a task. Tag associations cascade.
func (r *SQLRepository) DeleteTask(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`DELETE FROM tasks WHERE id = ? AND user_id = ?`)
		result, err := tx.ExecContext(ctx, query, id, userID)
		if err != nil {
			return fmt.Errorf("failed to delete task: %w", err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			return apperr.NotFoundf("task not found: %s", id)
		}
		return nil
	})
}

// ToggleComplete flips the completion state. On the incomplete-to-complete
// transition the outbox row built by mkOutbox is written in the same
// transaction, so the state change and its event are atomic.
func (r *SQLRepository) ToggleComplete(ctx context.Context, userID, id string, mkOutbox OutboxFunc) (*models.Task, error) {
	var task models.Task
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`SELECT * FROM tasks WHERE id = ? AND user_id = ?` + dialect.ForUpdate(r.driver()))
		if err := tx.GetContext(ctx, &task, query, id, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFoundf("task not found: %s", id)
			}
			return fmt.Errorf("failed to load task: %w", err)
		}

		now := time.Now().UTC()
		task.Completed = !task.Completed
		task.UpdatedAt = now
		if task.Completed {
			task.CompletedAt = &now
		} else {
			task.CompletedAt = nil
		}

		update := tx.Rebind(`
			UPDATE tasks SET completed = ?, completed_at = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`)
		if _, err := tx.ExecContext(ctx, update,
			task.Completed, task.CompletedAt, task.UpdatedAt, id, userID); err != nil {
			return fmt.Errorf("failed to toggle task: %w", err)
		}

		if task.Completed && mkOutbox != nil {
			if entry := mkOutbox(&task); entry != nil {
				if err := insertOutbox(ctx, tx, entry, now); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := r.loadTags(ctx, []*models.Task{&task}); err != nil {
		return nil, err
	}
	return &task, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/db/dialect"
	"github.com/taskloop/taskloop/internal/task/models"
)

// AddTag attaches a tag to a task, creating the tag on first use. Attaching
// an already-attached tag is a no-op.
func (r *SQLRepository) AddTag(ctx context.Context, userID, taskID, name string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.taskExists(ctx, tx, userID, taskID); err != nil {
			return err
		}
		tagID, err := r.upsertTag(ctx, tx, userID, name)
		if err != nil {
			return err
		}
		return r.associateTag(ctx, tx, taskID, tagID)
	})
}

// RemoveTag detaches a tag from a task. Detaching a tag that is not
// attached is a no-op; only a missing task reports NotFound. The tag
// itself survives so it keeps appearing in tag listings.
func (r *SQLRepository) RemoveTag(ctx context.Context, userID, taskID, name string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.taskExists(ctx, tx, userID, taskID); err != nil {
			return err
		}
		query := tx.Rebind(`
			DELETE FROM task_tag_associations
			WHERE task_id = ? AND tag_id IN (
				SELECT id FROM tags WHERE user_id = ? AND name = ?)`)
		if _, err := tx.ExecContext(ctx, query, taskID, userID, name); err != nil {
			return fmt.Errorf("failed to remove tag: %w", err)
		}
		return nil
	})
}

// ListTags returns the user's tags ordered by name.
func (r *SQLRepository) ListTags(ctx context.Context, userID string) ([]*models.Tag, error) {
	var tags []*models.Tag
	query := r.ro.Rebind(`SELECT * FROM tags WHERE user_id = ? ORDER BY name ASC`)
	if err := r.ro.SelectContext(ctx, &tags, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// DeleteTag removes a tag and all its associations.
func (r *SQLRepository) DeleteTag(ctx context.Context, userID, tagID string) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`DELETE FROM tags WHERE id = ? AND user_id = ?`)
		result, err := tx.ExecContext(ctx, query, tagID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete tag: %w", err)
		}
		if rows, err := result.RowsAffected(); err == nil && rows == 0 {
			return apperr.NotFoundf("tag not found: %s", tagID)
		}
		return nil
	})
}

// setTaskTags replaces a task's tag set inside an existing transaction.
func (r *SQLRepository) setTaskTags(ctx context.Context, tx *sqlx.Tx, userID, taskID string, names []string) error {
	clear := tx.Rebind(`DELETE FROM task_tag_associations WHERE task_id = ?`)
	if _, err := tx.ExecContext(ctx, clear, taskID); err != nil {
		return fmt.Errorf("failed to clear tag associations: %w", err)
	}
	for _, name := range names {
		tagID, err := r.upsertTag(ctx, tx, userID, name)
		if err != nil {
			return err
		}
		if err := r.associateTag(ctx, tx, taskID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// upsertTag finds or creates a tag by name.
func (r *SQLRepository) upsertTag(ctx context.Context, tx *sqlx.Tx, userID, name string) (string, error) {
	var tagID string
	query := tx.Rebind(`SELECT id FROM tags WHERE user_id = ? AND name = ?`)
	err := tx.GetContext(ctx, &tagID, query, userID, name)
	if err == nil {
		return tagID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up tag: %w", err)
	}

	tagID = uuid.NewString()
	insert := tx.Rebind(`INSERT INTO tags (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, tagID, userID, name, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to create tag: %w", err)
	}
	return tagID, nil
}

func (r *SQLRepository) associateTag(ctx context.Context, tx *sqlx.Tx, taskID, tagID string) error {
	query := tx.Rebind(
		dialect.InsertIgnoreVerb(r.driver()) +
			` INTO task_tag_associations (task_id, tag_id) VALUES (?, ?)` +
			dialect.InsertIgnoreSuffix(r.driver()))
	if _, err := tx.ExecContext(ctx, query, taskID, tagID); err != nil {
		return fmt.Errorf("failed to associate tag: %w", err)
	}
	return nil
}

func (r *SQLRepository) taskExists(ctx context.Context, tx *sqlx.Tx, userID, taskID string) error {
	var one int
	query := tx.Rebind(`SELECT 1 FROM tasks WHERE id = ? AND user_id = ?`)
	if err := tx.GetContext(ctx, &one, query, taskID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFoundf("task not found: %s", taskID)
		}
		return fmt.Errorf("failed to check task: %w", err)
	}
	return nil
}

// loadTags bulk-loads tag names for a task listing.
func (r *SQLRepository) loadTags(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tasks))
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
		byID[t.ID] = t
		t.Tags = []string{}
	}

	query, args, err := sqlx.In(`
		SELECT a.task_id, g.name
		FROM task_tag_associations a
		JOIN tags g ON g.id = a.tag_id
		WHERE a.task_id IN (?)
		ORDER BY g.name ASC`, ids)
	if err != nil {
		return fmt.Errorf("failed to build tag query: %w", err)
	}

	rows := []struct {
		TaskID string `db:"task_id"`
		Name   string `db:"name"`
	}{}
	if err := r.ro.SelectContext(ctx, &rows, r.ro.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load tags: %w", err)
	}

	for _, row := range rows {
		if t, ok := byID[row.TaskID]; ok {
			t.Tags = append(t.Tags, row.Name)
		}
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/taskloop/taskloop/internal/db/dialect"
	"github.com/taskloop/taskloop/internal/task/models"
)

// ClaimDueReminders flips reminder_sent on up to limit due reminders and
// returns the claimed rows. The flip commits before the caller publishes
// anything, so a crash after this call loses the notification rather than
// duplicating it.
func (r *SQLRepository) ClaimDueReminders(ctx context.Context, now time.Time, limit int) ([]*models.ReminderClaim, error) {
	var claims []*models.ReminderClaim

	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			SELECT id, user_id, title, remind_at, due_at FROM tasks
			WHERE remind_at IS NOT NULL AND remind_at <= ?
			  AND reminder_sent = ? AND completed = ?
			ORDER BY remind_at ASC
			LIMIT ?` + dialect.SkipLocked(r.driver()))
		if err := tx.SelectContext(ctx, &claims, query, now, false, false, limit); err != nil {
			return fmt.Errorf("failed to select due reminders: %w", err)
		}
		if len(claims) == 0 {
			return nil
		}

		ids := make([]string, len(claims))
		for i, c := range claims {
			ids[i] = c.TaskID
		}
		update, args, err := sqlx.In(
			`UPDATE tasks SET reminder_sent = ?, updated_at = ? WHERE id IN (?)`,
			true, now, ids)
		if err != nil {
			return fmt.Errorf("failed to build claim update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(update), args...); err != nil {
			return fmt.Errorf("failed to mark reminders sent: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// UserEmails resolves owner emails for claimed reminders.
func (r *SQLRepository) UserEmails(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}

	query, args, err := sqlx.In(`SELECT id, email FROM users WHERE id IN (?)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build email query: %w", err)
	}

	rows := []struct {
		ID    string `db:"id"`
		Email string `db:"email"`
	}{}
	if err := r.ro.SelectContext(ctx, &rows, r.ro.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load user emails: %w", err)
	}

	emails := make(map[string]string, len(rows))
	for _, row := range rows {
		emails[row.ID] = row.Email
	}
	return emails, nil
}

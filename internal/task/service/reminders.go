package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/events"
	"github.com/taskloop/taskloop/internal/events/bus"
)

// StartReminderLoop sweeps due reminders on a fixed interval until the
// context is cancelled.
func (s *Service) StartReminderLoop(ctx context.Context, interval time.Duration, batchSize int) {
	s.logger.Info("reminder loop started", zap.Duration("interval", interval))
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("reminder loop stopped")
				return
			case <-ticker.C:
				if err := s.SweepReminders(ctx, batchSize); err != nil {
					s.logger.Error("reminder sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// SweepReminders claims due reminders and publishes reminder.due events.
// Claiming marks reminder_sent before anything is published; a reminder
// whose publish fails is logged and lost, never re-fired. With events
// disabled the sweep claims nothing, so reminders stay armed for a later
// deployment that re-enables emission.
func (s *Service) SweepReminders(ctx context.Context, batchSize int) error {
	if !s.eventsEnabled {
		return nil
	}
	now := time.Now().UTC()
	claims, err := s.repo.ClaimDueReminders(ctx, now, batchSize)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		return nil
	}

	userIDs := make([]string, 0, len(claims))
	seen := make(map[string]bool, len(claims))
	for _, c := range claims {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			userIDs = append(userIDs, c.UserID)
		}
	}
	emails, err := s.repo.UserEmails(ctx, userIDs)
	if err != nil {
		// The claims are already durable; surface the error and let the
		// operator see reminders went out without addresses.
		s.logger.Error("failed to resolve reminder recipients", zap.Error(err))
		emails = map[string]string{}
	}

	published := 0
	for _, claim := range claims {
		payload := events.ReminderDuePayload{
			TaskID:     claim.TaskID,
			Title:      claim.Title,
			OwnerEmail: emails[claim.UserID],
			RemindAt:   claim.RemindAt,
			DueAt:      claim.DueAt,
		}
		event := bus.NewEvent(events.ReminderDue, events.SourceScheduler, claim.UserID, payload.ToMap())
		if err := s.bus.Publish(ctx, events.TopicReminders, event); err != nil {
			s.logger.Error("reminder publish failed, notification lost",
				zap.String("task_id", claim.TaskID),
				zap.Error(err))
			continue
		}
		published++
	}

	s.logger.Info("reminder sweep complete",
		zap.Int("claimed", len(claims)),
		zap.Int("published", published))
	return nil
}

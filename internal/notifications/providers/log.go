package providers

import (
	"context"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/logger"
)

// LogSender writes each notification to the structured log instead of
// delivering it. It is the default transport when no SMTP host is
// configured.
type LogSender struct {
	logger *logger.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{logger: log.WithFields(zap.String("component", "log-sender"))}
}

// Name implements Sender.
func (s *LogSender) Name() string { return "log" }

// Send implements Sender. It never fails.
func (s *LogSender) Send(ctx context.Context, email Email) error {
	s.logger.WithContext(ctx).Info("reminder notification",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("body", email.Body))
	return nil
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/taskloop/taskloop/internal/common/apperr"
	"github.com/taskloop/taskloop/internal/common/config"
)

// SMTPSender delivers notifications over SMTP. A circuit breaker guards the
// upstream server: after repeated failures the breaker opens and sends fail
// fast as Transient until the cool-off expires.
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	from     string
	breaker  *gobreaker.CircuitBreaker[struct{}]
}

// NewSMTPSender creates an SMTP sender from the worker configuration.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "smtp",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Name implements Sender.
func (s *SMTPSender) Name() string { return "smtp" }

// Send implements Sender. Failures are classified by SMTP reply code: 4xx
// replies and connection errors are Transient, 5xx replies Permanent.
func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.Deadline, "smtp send canceled", err)
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	message := buildMessage(s.from, email)

	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, smtp.SendMail(s.addr, auth, s.from, []string{email.To}, message)
	})
	return classifySMTPError(err)
}

// buildMessage assembles a minimal RFC 5322 message.
func buildMessage(from string, email Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", email.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", email.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(email.Body)
	return []byte(b.String())
}

func classifySMTPError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.Transient, "smtp circuit open", err)
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		if reply.Code >= 500 {
			return apperr.Wrap(apperr.Permanent, "smtp server rejected message", err)
		}
		return apperr.Wrap(apperr.Transient, "smtp server busy", err)
	}
	return apperr.Wrap(apperr.Transient, "smtp delivery failed", err)
}

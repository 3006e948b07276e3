package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/asmbly/membersync/internal/config"
)

// Mailer sends the two access transition notifications. Delivery is
// fire-and-forget from the reconciler's perspective: failures are
// logged here, never turned into reconciliation failures.
type Mailer interface {
	SendAccessEnabled(ctx context.Context, email, name string) error
	SendAccessDisabled(ctx context.Context, email, name string) error
}

// SMTP delivers notifications through a plain SMTP relay.
type SMTP struct {
	logger *slog.Logger
	config config.SMTPConfig
}

func NewSMTP(logger *slog.Logger, cfg config.SMTPConfig) *SMTP {
	return &SMTP{logger: logger, config: cfg}
}

const accessEnabledSubject = "Your facility access is active"

const accessEnabledBody = `Hi %s,

Your keyless entry access has been activated. Open the app on your
phone and your entitled doors will unlock during their posted hours.

See you at the shop!`

const accessDisabledSubject = "Your facility access has ended"

const accessDisabledBody = `Hi %s,

Your keyless entry access has been deactivated because our records
show your membership is no longer active. If this is unexpected,
please reply to this email and we will sort it out.`

func (s *SMTP) SendAccessEnabled(ctx context.Context, email, name string) error {
	return s.send(email, accessEnabledSubject, fmt.Sprintf(accessEnabledBody, name))
}

func (s *SMTP) SendAccessDisabled(ctx context.Context, email, name string) error {
	return s.send(email, accessDisabledSubject, fmt.Sprintf(accessDisabledBody, name))
}

func (s *SMTP) send(to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.config.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := smtp.SendMail(addr, auth, s.config.From, []string{to}, []byte(msg.String())); err != nil {
		s.logger.Error("Failed to send notification email",
			"to", to, "subject", subject, "error", err)
		return fmt.Errorf("sending %q to %s: %w", subject, to, err)
	}

	s.logger.Info("Sent notification email", "to", to, "subject", subject)
	return nil
}

// Log records notifications without delivering anything. Used for dry
// runs and when SMTP is not configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) SendAccessEnabled(ctx context.Context, email, name string) error {
	l.logger.Info("Would send access enabled email", "to", email, "name", name)
	return nil
}

func (l *Log) SendAccessDisabled(ctx context.Context, email, name string) error {
	l.logger.Info("Would send access disabled email", "to", email, "name", name)
	return nil
}

// internal/app/system/mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/dalemusser/waffle/pantry/email"
	"go.uber.org/zap"
)

// Email is a single outgoing message. HTMLBody is optional.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Config holds SMTP settings. User may be empty for local catch-all servers
// such as Mailpit.
type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
}

// Sender is implemented by Mailer and by test doubles.
type Sender interface {
	Send(ctx context.Context, e Email) error
}

// transport is the part of email.Sender the Mailer uses.
type transport interface {
	Send(ctx context.Context, msg email.Message) error
}

// Mailer sends mail through the configured SMTP relay.
type Mailer struct {
	cfg       Config
	logger    *zap.Logger
	transport transport
}

func New(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		transport: email.NewSender(email.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			Username:    cfg.User,
			Password:    cfg.Pass,
			FromAddress: cfg.From,
			FromName:    cfg.FromName,
		}),
	}
}

// Send validates the recipient and hands the message to the relay.
func (m *Mailer) Send(ctx context.Context, e Email) error {
	if _, err := mail.ParseAddress(e.To); err != nil {
		return fmt.Errorf("mailer: invalid recipient %q: %w", e.To, err)
	}
	if m.cfg.Host == "" {
		return errors.New("mailer: smtp host not configured")
	}

	msg := email.Message{
		To:       []string{e.To},
		Subject:  e.Subject,
		TextBody: e.TextBody,
		HTMLBody: e.HTMLBody,
	}
	if err := m.transport.Send(ctx, msg); err != nil {
		m.logger.Warn("smtp send failed", zap.String("to", e.To), zap.Error(err))
		return fmt.Errorf("mailer: send: %w", err)
	}
	m.logger.Debug("email sent", zap.String("to", e.To), zap.String("subject", e.Subject))
	return nil
}

// Package notify delivers rendered notifications to patients.
package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// Notifier sends one notification.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
}

type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SkipVerify bool
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer is an SMTP Notifier.
type Mailer struct {
	dialer dialer
	from   string
}

func NewMailer(cfg Config) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SkipVerify {
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	}
	return &Mailer{dialer: d, from: cfg.From}
}

func (m *Mailer) Send(ctx context.Context, n model.Notification) error {
	if n.Channel != "" && n.Channel != model.NotificationChannelEmail {
		return fmt.Errorf("mailer cannot deliver %s notifications", n.Channel)
	}
	if n.Recipient == "" {
		return errors.New("notification has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", n.Recipient)
	msg.SetHeader("Subject", n.Subject)
	msg.SetBody("text/plain", n.Content)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", n.Recipient, err)
	}
	return nil
}

// LogNotifier only records notifications; used when SMTP is not configured.
type LogNotifier struct {
	Log func(msg string, fields ...interface{})
}

func (l LogNotifier) Send(_ context.Context, n model.Notification) error {
	if l.Log != nil {
		l.Log("notification suppressed", "recipient", n.Recipient, "subject", n.Subject)
	}
	return nil
}

package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/notify"
)

const (
	maxRetries = 3
	retryDelay = 5 * time.Second
)

type Config struct {
	ClinicName string
	Location   *time.Location
	MaxRetries int
	RetryDelay time.Duration
}

// Service turns appointment events into patient notifications.
type Service struct {
	notifier notify.Notifier
	cfg      Config
	metrics  *metrics.Metrics
	log      *logger.Logger
}

func NewService(notifier notify.Notifier, cfg Config, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = maxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = retryDelay
	}
	if cfg.ClinicName == "" {
		cfg.ClinicName = "the clinic"
	}
	return &Service{notifier: notifier, cfg: cfg, metrics: m, log: log.WithModule("notification")}
}

// HandleEvent is a messaging.Handler for appointment topics.
func (s *Service) HandleEvent(ctx context.Context, event messaging.Event) error {
	var apt model.AppointmentEvent
	if err := event.Decode(&apt); err != nil {
		return fmt.Errorf("invalid appointment event %s: %w", event.ID, err)
	}
	if apt.Type == "" {
		apt.Type = event.Type
	}

	n, ok := s.Render(apt)
	if !ok {
		s.log.Debug("no notification for event", "type", event.Type)
		return nil
	}
	return s.Send(ctx, n)
}

// Render builds the message for an appointment event. Events without a
// patient email or of an unknown type produce nothing.
func (s *Service) Render(evt model.AppointmentEvent) (model.Notification, bool) {
	if strings.TrimSpace(evt.PatientEmail) == "" {
		return model.Notification{}, false
	}

	service := evt.ServiceName
	if service == "" {
		service = "appointment"
	}
	when := evt.StartsAt.In(s.cfg.Location).Format("Monday, January 2, 2006 at 3:04 PM MST")

	n := model.Notification{Channel: model.NotificationChannelEmail, Recipient: evt.PatientEmail}
	switch evt.Type {
	case messaging.TopicAppointmentBooked:
		n.Subject = fmt.Sprintf("Your %s is booked", service)
		n.Content = fmt.Sprintf("Hello %s,\n\nYour %s at %s is confirmed for %s.\n\nReference: %s\n",
			evt.PatientName, service, s.cfg.ClinicName, when, evt.AppointmentID)
	case messaging.TopicAppointmentCancelled:
		n.Subject = fmt.Sprintf("Your %s was cancelled", service)
		n.Content = fmt.Sprintf("Hello %s,\n\nYour %s at %s on %s has been cancelled.\n\nReference: %s\n",
			evt.PatientName, service, s.cfg.ClinicName, when, evt.AppointmentID)
	default:
		return model.Notification{}, false
	}
	return n, true
}

// Send delivers n, retrying with a linearly growing delay.
func (s *Service) Send(ctx context.Context, n model.Notification) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err = s.notifier.Send(ctx, n); err == nil {
			s.count(n.Channel, "sent")
			s.log.Info("notification sent", "channel", string(n.Channel), "recipient", n.Recipient)
			return nil
		}

		s.log.Warn("notification attempt failed",
			"recipient", n.Recipient, "attempt", attempt, "error", err.Error())
		if attempt == s.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			s.count(n.Channel, "failed")
			return ctx.Err()
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
		}
	}

	s.count(n.Channel, "failed")
	return fmt.Errorf("failed to send notification after %d attempts: %w", s.cfg.MaxRetries, err)
}

func (s *Service) count(channel model.NotificationChannel, status string) {
	if s.metrics != nil {
		s.metrics.NotificationsSent.WithLabelValues(string(channel), status).Inc()
	}
}

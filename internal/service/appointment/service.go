package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/service/availability"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type Service struct {
	tx           repository.Transactor
	availability *availability.Service
	publisher    messaging.Publisher
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func NewService(
	tx repository.Transactor,
	availabilitySvc *availability.Service,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		tx:           tx,
		availability: availabilitySvc,
		publisher:    publisher,
		metrics:      m,
		log:          log.WithModule("appointment"),
		now:          time.Now,
	}
}

// WithClock replaces the time source used for lead-time checks.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateAppointment books the requested start if it is one of the free
// slots computed inside the same serializable transaction.
func (s *Service) CreateAppointment(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if req.StartsAt.IsZero() {
		return nil, apperrors.NewBadRequest("starts_at is required", nil)
	}
	if strings.TrimSpace(req.PatientName) == "" || strings.TrimSpace(req.PatientEmail) == "" {
		return nil, apperrors.NewBadRequest("patient name and email are required", nil)
	}

	day := model.DateOf(req.StartsAt, s.availability.Location())
	var (
		apt *model.Appointment
		svc *model.Service
	)
	err := s.tx.WithTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(r repository.Repositories) error {
		res, err := s.availability.ComputeIn(ctx, r, availability.Query{ServiceID: req.ServiceID, Start: day, End: day}, s.now())
		if err != nil {
			return err
		}
		switch res.Reason {
		case availability.ReasonServiceNotFound:
			return apperrors.NewNotFound("service", nil)
		case availability.ReasonServiceInactive:
			return apperrors.NewBadRequest("service is not currently bookable", nil)
		}
		if !res.Contains(req.StartsAt) {
			return apperrors.Conflict("requested time is not available", nil)
		}

		svc = res.Service
		apt = &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			ServiceID:       svc.ID,
			PatientName:     strings.TrimSpace(req.PatientName),
			PatientEmail:    strings.TrimSpace(req.PatientEmail),
			StartsAt:        req.StartsAt.UTC(),
			DurationMinutes: svc.DurationMinutes,
			Status:          model.AppointmentStatusScheduled,
			Notes:           req.Notes,
		}
		return r.Appointments.Create(ctx, apt)
	})
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrConflict) || errors.Is(err, repository.ErrConflict) {
			s.countConflict()
		}
		return nil, s.translate(err, "failed to create appointment")
	}

	if s.metrics != nil {
		s.metrics.BookingsCreated.Inc()
	}
	s.log.Info("appointment booked",
		"appointment_id", apt.ID.String(), "service_id", svc.ID.String(), "starts_at", apt.StartsAt.Format(time.RFC3339))
	s.publish(ctx, messaging.TopicAppointmentBooked, apt, svc)
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var apt *model.Appointment
	err := s.tx.ReadOnly(ctx, func(r repository.Repositories) error {
		var err error
		apt, err = r.Appointments.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "failed to get appointment")
	}
	return apt, nil
}

func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*model.Appointment, error) {
	var (
		apt *model.Appointment
		svc *model.Service
	)
	err := s.tx.WithTx(ctx, nil, func(r repository.Repositories) error {
		var err error
		apt, err = r.Appointments.Get(ctx, id)
		if err != nil {
			return err
		}

		switch apt.Status {
		case model.AppointmentStatusCancelled:
			return apperrors.Conflict("appointment is already cancelled", nil)
		case model.AppointmentStatusDone:
			return apperrors.NewBadRequest("cannot cancel a completed appointment", nil)
		}

		var reasonPtr *string
		if reason = strings.TrimSpace(reason); reason != "" {
			reasonPtr = &reason
		}
		if err := r.Appointments.UpdateStatus(ctx, id, model.AppointmentStatusCancelled, reasonPtr); err != nil {
			return err
		}
		apt.Status = model.AppointmentStatusCancelled
		apt.CancelReason = reasonPtr

		if svc, err = r.Services.Get(ctx, apt.ServiceID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "failed to cancel appointment")
	}

	if s.metrics != nil {
		s.metrics.BookingsCancelled.Inc()
	}
	s.log.Info("appointment cancelled", "appointment_id", id.String())
	s.publish(ctx, messaging.TopicAppointmentCancelled, apt, svc)
	return apt, nil
}

// translate maps repository errors onto application errors.
func (s *Service) translate(err error, action string) error {
	if errors.Is(err, repository.ErrConflict) {
		return apperrors.Conflict("the slot was taken by a concurrent booking, please retry", err)
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound("appointment", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Unavailable("booking store", err)
	default:
		return apperrors.Internal(fmt.Errorf("%s: %w", action, err))
	}
}

func (s *Service) publish(ctx context.Context, topic string, apt *model.Appointment, svc *model.Service) {
	event := model.AppointmentEvent{
		Type:          topic,
		AppointmentID: apt.ID,
		ServiceID:     apt.ServiceID,
		PatientName:   apt.PatientName,
		PatientEmail:  apt.PatientEmail,
		StartsAt:      apt.StartsAt,
		Status:        apt.Status,
	}
	if svc != nil {
		event.ServiceName = svc.Name
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.log.Error(err, "failed to publish appointment event", "topic", topic, "appointment_id", apt.ID.String())
	}
}

func (s *Service) countConflict() {
	if s.metrics != nil {
		s.metrics.BookingConflicts.Inc()
	}
}

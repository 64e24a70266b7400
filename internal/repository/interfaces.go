package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write lost a race with another
	// transaction (serialization failure or unique violation).
	ErrConflict = errors.New("concurrent update conflict")
)

// All repository interfaces in one file
type (
	// ScheduleRepository holds the weekly rule set and blackout dates.
	ScheduleRepository interface {
		ScheduleVersion(ctx context.Context) (int64, error)
		ListWeeklyRules(ctx context.Context) ([]model.WeeklyRule, error)
		// ReplaceWeeklyRules swaps the rule set and returns the new version.
		// Callers run it inside a transaction.
		ReplaceWeeklyRules(ctx context.Context, rules []model.WeeklyRule) (int64, error)
		ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error)
		UpsertBlackoutDates(ctx context.Context, blackouts []model.BlackoutDate) (int, error)
		DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error
		// ListOccupying returns capacity-consuming appointments whose
		// interval overlaps [from, to).
		ListOccupying(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
	}

	ServiceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Service, error)
	}
)

// Repositories is a set of stores bound to the same connection or transaction.
type Repositories struct {
	Schedule     ScheduleRepository
	Appointments AppointmentRepository
	Services     ServiceRepository
}

type Transactor interface {
	// ReadOnly runs fn in a read-only repeatable-read transaction so every
	// read observes the same snapshot.
	ReadOnly(ctx context.Context, fn func(Repositories) error) error
	WithTx(ctx context.Context, opts *sql.TxOptions, fn func(Repositories) error) error
}

// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
)

type ScheduleRepository struct {
	mock.Mock
}

func (m *ScheduleRepository) ScheduleVersion(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ScheduleRepository) ListWeeklyRules(ctx context.Context) ([]model.WeeklyRule, error) {
	args := m.Called(ctx)
	rules, _ := args.Get(0).([]model.WeeklyRule)
	return rules, args.Error(1)
}

func (m *ScheduleRepository) ReplaceWeeklyRules(ctx context.Context, rules []model.WeeklyRule) (int64, error) {
	args := m.Called(ctx, rules)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ScheduleRepository) ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error) {
	args := m.Called(ctx, start, end)
	blackouts, _ := args.Get(0).([]model.BlackoutDate)
	return blackouts, args.Error(1)
}

func (m *ScheduleRepository) UpsertBlackoutDates(ctx context.Context, blackouts []model.BlackoutDate) (int, error) {
	args := m.Called(ctx, blackouts)
	return args.Int(0), args.Error(1)
}

func (m *ScheduleRepository) DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type AppointmentRepository struct {
	mock.Mock
}

func (m *AppointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	return m.Called(ctx, appointment).Error(0)
}

func (m *AppointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	apt, _ := args.Get(0).(*model.Appointment)
	return apt, args.Error(1)
}

func (m *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, reason *string) error {
	return m.Called(ctx, id, status, reason).Error(0)
}

func (m *AppointmentRepository) ListOccupying(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	args := m.Called(ctx, from, to)
	apts, _ := args.Get(0).([]model.Appointment)
	return apts, args.Error(1)
}

type ServiceRepository struct {
	mock.Mock
}

func (m *ServiceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	args := m.Called(ctx, id)
	svc, _ := args.Get(0).(*model.Service)
	return svc, args.Error(1)
}

// Transactor runs callbacks directly against the mocked repositories.
type Transactor struct {
	Schedule     *ScheduleRepository
	Appointments *AppointmentRepository
	Services     *ServiceRepository

	// BeginErr, when set, is returned instead of running the callback.
	BeginErr error
	// CommitErr replaces a nil callback result.
	CommitErr error

	ReadOnlyCalls int
	TxOptions     []*sql.TxOptions
}

func NewTransactor() *Transactor {
	return &Transactor{
		Schedule:     &ScheduleRepository{},
		Appointments: &AppointmentRepository{},
		Services:     &ServiceRepository{},
	}
}

func (t *Transactor) Repositories() repository.Repositories {
	return repository.Repositories{
		Schedule:     t.Schedule,
		Appointments: t.Appointments,
		Services:     t.Services,
	}
}

func (t *Transactor) ReadOnly(ctx context.Context, fn func(repository.Repositories) error) error {
	t.ReadOnlyCalls++
	return t.run(fn)
}

func (t *Transactor) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(repository.Repositories) error) error {
	t.TxOptions = append(t.TxOptions, opts)
	return t.run(fn)
}

func (t *Transactor) run(fn func(repository.Repositories) error) error {
	if t.BeginErr != nil {
		return t.BeginErr
	}
	if err := fn(t.Repositories()); err != nil {
		return err
	}
	return t.CommitErr
}

// AssertExpectations checks every mocked repository.
func (t *Transactor) AssertExpectations(tt mock.TestingT) {
	t.Schedule.AssertExpectations(tt)
	t.Appointments.AssertExpectations(tt)
	t.Services.AssertExpectations(tt)
}

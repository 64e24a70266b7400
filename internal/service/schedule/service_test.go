package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/internal/repository/mocks"
	"github.com/jwalitptl/clinic-booking/pkg/calendar"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

type capturePublisher struct {
	topics []string
	events []model.ScheduleChangedEvent
}

func (p *capturePublisher) Publish(_ context.Context, topic string, payload interface{}) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, payload.(model.ScheduleChangedEvent))
	return nil
}

type stubHolidays struct {
	holidays []calendar.Holiday
	err      error
	url      string
}

func (s *stubHolidays) FetchHolidays(_ context.Context, url string, _, _ model.Date) ([]calendar.Holiday, error) {
	s.url = url
	return s.holidays, s.err
}

func newTestService(holidays HolidaySource) (*Service, *mocks.Transactor, *capturePublisher, *metrics.Metrics) {
	tx := mocks.NewTransactor()
	pub := &capturePublisher{}
	m := metrics.NewMetrics(prometheus.NewRegistry(), "clinic", "test")
	svc := NewService(tx, pub, holidays, Config{ICalURL: "https://example.com/holidays.ics"}, m, nil)
	svc.now = func() time.Time { return time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC) }
	return svc, tx, pub, m
}

func intPtr(v int) *int { return &v }

func TestReplaceWeeklyRules(t *testing.T) {
	svc, tx, pub, _ := newTestService(nil)
	tx.Schedule.On("ReplaceWeeklyRules", mock.Anything, mock.MatchedBy(func(rules []model.WeeklyRule) bool {
		return len(rules) == 2 &&
			rules[0].Weekday == 1 && rules[0].StartTime.String() == "08:00" &&
			rules[1].EndTime.String() == "17:30"
	})).Return(int64(7), nil)

	set, err := svc.ReplaceWeeklyRules(context.Background(), &model.ReplaceRulesRequest{Rules: []model.RuleInput{
		{Weekday: intPtr(1), StartTime: "08:00", EndTime: "12:00"},
		{Weekday: intPtr(1), StartTime: "13:00", EndTime: "17:30"},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), set.Version)
	assert.Len(t, set.Rules, 2)
	assert.Equal(t, []string{messaging.TopicScheduleChanged}, pub.topics)
	assert.Equal(t, model.ScheduleChangeRules, pub.events[0].Kind)
	assert.Equal(t, int64(7), pub.events[0].Version)
	tx.AssertExpectations(t)
}

func TestReplaceWeeklyRulesRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		rule model.RuleInput
	}{
		{"missing weekday", model.RuleInput{StartTime: "08:00", EndTime: "12:00"}},
		{"weekday out of range", model.RuleInput{Weekday: intPtr(7), StartTime: "08:00", EndTime: "12:00"}},
		{"bad clock", model.RuleInput{Weekday: intPtr(2), StartTime: "8am", EndTime: "12:00"}},
		{"inverted", model.RuleInput{Weekday: intPtr(2), StartTime: "12:00", EndTime: "08:00"}},
		{"empty", model.RuleInput{Weekday: intPtr(2), StartTime: "12:00", EndTime: "12:00"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, tx, pub, _ := newTestService(nil)
			_, err := svc.ReplaceWeeklyRules(context.Background(), &model.ReplaceRulesRequest{Rules: []model.RuleInput{tt.rule}})
			assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
			tx.Schedule.AssertNotCalled(t, "ReplaceWeeklyRules", mock.Anything, mock.Anything)
			assert.Empty(t, pub.topics)
		})
	}
}

func TestReplaceWeeklyRulesEmptyClosesClinic(t *testing.T) {
	svc, tx, _, _ := newTestService(nil)
	tx.Schedule.On("ReplaceWeeklyRules", mock.Anything, []model.WeeklyRule{}).Return(int64(2), nil)

	set, err := svc.ReplaceWeeklyRules(context.Background(), &model.ReplaceRulesRequest{})
	require.NoError(t, err)
	assert.Empty(t, set.Rules)
}

func TestListWeeklyRules(t *testing.T) {
	svc, tx, _, _ := newTestService(nil)
	tx.Schedule.On("ScheduleVersion", mock.Anything).Return(int64(3), nil)
	tx.Schedule.On("ListWeeklyRules", mock.Anything).Return(nil, nil)

	set, err := svc.ListWeeklyRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), set.Version)
	assert.NotNil(t, set.Rules)
	assert.Equal(t, 1, tx.ReadOnlyCalls)
}

func TestListWeeklyRulesStoreFailure(t *testing.T) {
	svc, tx, _, _ := newTestService(nil)
	tx.BeginErr = context.DeadlineExceeded

	_, err := svc.ListWeeklyRules(context.Background())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnavailable))
}

func TestAddBlackoutDate(t *testing.T) {
	svc, tx, pub, _ := newTestService(nil)
	tx.Schedule.On("UpsertBlackoutDates", mock.Anything, mock.MatchedBy(func(b []model.BlackoutDate) bool {
		return len(b) == 1 && b[0].Date == model.NewDate(2026, time.December, 24) &&
			b[0].Source == model.BlackoutSourceManual && b[0].Reason == "Staff party"
	})).Return(1, nil).Once()

	blackout, err := svc.AddBlackoutDate(context.Background(), &model.CreateBlackoutRequest{Date: "2026-12-24", Reason: " Staff party "})
	require.NoError(t, err)
	assert.Equal(t, "2026-12-24", blackout.Date.String())
	assert.Equal(t, []string{messaging.TopicScheduleChanged}, pub.topics)
	assert.Equal(t, []model.Date{model.NewDate(2026, time.December, 24)}, pub.events[0].Dates)
}

func TestAddBlackoutDateDuplicate(t *testing.T) {
	svc, tx, pub, _ := newTestService(nil)
	tx.Schedule.On("UpsertBlackoutDates", mock.Anything, mock.Anything).Return(0, nil)

	_, err := svc.AddBlackoutDate(context.Background(), &model.CreateBlackoutRequest{Date: "2026-12-24"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrConflict))
	assert.Empty(t, pub.topics)
}

func TestAddBlackoutDateInvalid(t *testing.T) {
	svc, _, _, _ := newTestService(nil)
	_, err := svc.AddBlackoutDate(context.Background(), &model.CreateBlackoutRequest{Date: "24/12/2026"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

func TestDeleteBlackoutDate(t *testing.T) {
	svc, tx, pub, _ := newTestService(nil)
	found := uuid.New()
	missing := uuid.New()
	tx.Schedule.On("DeleteBlackoutDate", mock.Anything, found).Return(nil)
	tx.Schedule.On("DeleteBlackoutDate", mock.Anything, missing).Return(repository.ErrNotFound)

	require.NoError(t, svc.DeleteBlackoutDate(context.Background(), found))
	assert.Len(t, pub.topics, 1)

	err := svc.DeleteBlackoutDate(context.Background(), missing)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
	assert.Len(t, pub.topics, 1)
}

func TestListBlackoutDates(t *testing.T) {
	svc, tx, _, _ := newTestService(nil)
	start := model.NewDate(2026, time.December, 1)
	end := model.NewDate(2026, time.December, 31)
	tx.Schedule.On("ListBlackoutDates", mock.Anything, start, end).Return(nil, nil)

	got, err := svc.ListBlackoutDates(context.Background(), start, end)
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = svc.ListBlackoutDates(context.Background(), end, start)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidRange))
}

func TestImportHolidays(t *testing.T) {
	source := &stubHolidays{holidays: []calendar.Holiday{
		{UID: "xmas", Date: model.NewDate(2026, time.December, 25), Summary: "Christmas Day"},
		{UID: "ny", Date: model.NewDate(2027, time.January, 1), Summary: "New Year's Day"},
	}}
	svc, tx, pub, m := newTestService(source)
	tx.Schedule.On("UpsertBlackoutDates", mock.Anything, mock.MatchedBy(func(b []model.BlackoutDate) bool {
		return len(b) == 2 && b[0].Source == model.BlackoutSourceICal && b[1].Reason == "New Year's Day"
	})).Return(1, nil)

	res, err := svc.ImportHolidays(context.Background(), "", model.NewDate(2026, time.December, 1), model.NewDate(2027, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, "https://example.com/holidays.ics", source.url)
	assert.Equal(t, []string{messaging.TopicBlackoutDatesImported}, pub.topics)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HolidayImports.WithLabelValues("success")))
}

func TestImportHolidaysNothingNew(t *testing.T) {
	svc, tx, pub, _ := newTestService(&stubHolidays{})

	res, err := svc.ImportHolidays(context.Background(), "https://example.com/other.ics",
		model.NewDate(2026, time.December, 1), model.NewDate(2026, time.December, 31))
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Empty(t, pub.topics)
	tx.Schedule.AssertNotCalled(t, "UpsertBlackoutDates", mock.Anything, mock.Anything)
}

func TestImportHolidaysFailures(t *testing.T) {
	start := model.NewDate(2026, time.January, 1)

	svc, _, _, m := newTestService(&stubHolidays{err: errors.New("connection refused")})
	_, err := svc.ImportHolidays(context.Background(), "", start, start.AddDays(30))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnavailable))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HolidayImports.WithLabelValues("fetch_error")))

	_, err = svc.ImportHolidays(context.Background(), "", start, start.AddDays(DefaultMaxImportDays))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidRange))

	svc.cfg.ICalURL = ""
	_, err = svc.ImportHolidays(context.Background(), "", start, start.AddDays(30))
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))
}

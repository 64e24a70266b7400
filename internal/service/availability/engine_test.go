package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

func hourService() *model.Service {
	return &model.Service{ID: serviceID, Name: "Check-up", DurationMinutes: 60, Active: true}
}

func scenarioRequest(t *testing.T) Request {
	loc := mustLoad(t, "America/New_York")
	return Request{
		Snapshot: model.ScheduleSnapshot{
			Version: 1,
			Rules:   []model.WeeklyRule{rule(time.Monday, "08:00", "12:00")},
		},
		Service:  hourService(),
		Start:    monday,
		End:      monday,
		Location: loc,
		Now:      time.Date(2026, time.October, 19, 9, 0, 0, 0, loc),
	}
}

func dayTimes(res *Result, loc *time.Location) []string {
	var out []string
	for _, d := range res.Days {
		for _, s := range d.Slots {
			out = append(out, s.Start.In(loc).Format("15:04"))
		}
	}
	return out
}

func TestEngineScenarios(t *testing.T) {
	e := NewEngine(nil)

	t.Run("A: plain weekly rule", func(t *testing.T) {
		req := scenarioRequest(t)
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00", "10:00", "11:00"}, dayTimes(res, req.Location))
		assert.Empty(t, res.Reason)
		assert.Equal(t, "America/New_York", res.TimeZone)
	})

	t.Run("B: existing booking removes its slot", func(t *testing.T) {
		req := scenarioRequest(t)
		req.Bookings = []model.Appointment{
			booking(time.Date(2026, time.November, 2, 9, 0, 0, 0, req.Location), 60, model.AppointmentStatusConfirmed),
		}
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "10:00", "11:00"}, dayTimes(res, req.Location))
	})

	t.Run("C: blackout closes the day", func(t *testing.T) {
		req := scenarioRequest(t)
		req.Snapshot.Blackouts = []model.BlackoutDate{{Date: monday, Reason: "holiday"}}
		res, err := e.Compute(req)
		require.NoError(t, err)
		require.Len(t, res.Days, 1)
		assert.True(t, res.Days[0].Blackout)
		assert.Empty(t, res.Days[0].Slots)
	})

	t.Run("D: rule shorter than the service", func(t *testing.T) {
		req := scenarioRequest(t)
		req.Snapshot.Rules = []model.WeeklyRule{rule(time.Monday, "08:00", "08:50")}
		res, err := e.Compute(req)
		require.NoError(t, err)
		require.Len(t, res.Days, 1)
		assert.Empty(t, res.Days[0].Slots)
	})

	t.Run("E: overlapping rules yield each slot once", func(t *testing.T) {
		req := scenarioRequest(t)
		req.Snapshot.Rules = []model.WeeklyRule{
			rule(time.Monday, "08:00", "12:00"),
			rule(time.Monday, "10:00", "14:00"),
		}
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00", "09:00", "10:00", "11:00", "12:00", "13:00"}, dayTimes(res, req.Location))
	})
}

func TestEngineServiceReasons(t *testing.T) {
	e := NewEngine(nil)

	req := scenarioRequest(t)
	req.Service = nil
	res, err := e.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, ReasonServiceNotFound, res.Reason)
	assert.Empty(t, res.Days)

	req = scenarioRequest(t)
	req.Service.Active = false
	res, err = e.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, ReasonServiceInactive, res.Reason)
	assert.Equal(t, serviceID, res.ServiceID)
	assert.Empty(t, res.Days)
}

func TestEngineErrors(t *testing.T) {
	e := NewEngine(nil)

	req := scenarioRequest(t)
	req.End = req.Start.AddDays(-1)
	_, err := e.Compute(req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidRange))

	req = scenarioRequest(t)
	req.Service.DurationMinutes = 0
	_, err = e.Compute(req)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrInvalidDuration))
}

func TestEngineLeadTime(t *testing.T) {
	e := NewEngine(nil)
	req := scenarioRequest(t)
	req.Now = time.Date(2026, time.November, 2, 7, 30, 0, 0, req.Location)
	req.MinLeadMinutes = 90

	res, err := e.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:00", "11:00"}, dayTimes(res, req.Location))
	cutoff := req.Now.Add(90 * time.Minute)
	for _, d := range res.Days {
		for _, s := range d.Slots {
			assert.False(t, s.Start.Before(cutoff))
		}
	}
}

func TestEngineIsIdempotent(t *testing.T) {
	e := NewEngine(nil)
	req := scenarioRequest(t)
	req.End = monday.AddDays(20)
	req.Snapshot.Rules = append(req.Snapshot.Rules,
		rule(time.Tuesday, "13:00", "17:00"),
		rule(time.Friday, "09:30", "12:00"),
	)
	req.Snapshot.Blackouts = []model.BlackoutDate{{Date: monday.AddDays(7)}}
	req.Bookings = []model.Appointment{
		booking(time.Date(2026, time.November, 3, 14, 0, 0, 0, req.Location), 45, model.AppointmentStatusScheduled),
	}

	first, err := e.Compute(req)
	require.NoError(t, err)
	second, err := e.Compute(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.Days, 21)
	assert.True(t, first.Days[7].Blackout)
	assert.True(t, first.Contains(time.Date(2026, time.November, 3, 13, 0, 0, 0, req.Location)))
	assert.False(t, first.Contains(time.Date(2026, time.November, 3, 14, 0, 0, 0, req.Location)))
	assert.True(t, first.Contains(time.Date(2026, time.November, 3, 15, 0, 0, 0, req.Location)))
}

func TestEngineResolvesOverlapsAmongFreeSlots(t *testing.T) {
	e := NewEngine(nil)
	overlapping := func(t *testing.T) Request {
		req := scenarioRequest(t)
		req.Snapshot.Rules = []model.WeeklyRule{
			rule(time.Monday, "08:00", "09:00"),
			rule(time.Monday, "08:30", "09:30"),
		}
		return req
	}

	t.Run("no bookings keeps the earliest", func(t *testing.T) {
		req := overlapping(t)
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:00"}, dayTimes(res, req.Location))
	})

	t.Run("booking on the earlier slot frees the later one", func(t *testing.T) {
		req := overlapping(t)
		req.Bookings = []model.Appointment{
			booking(time.Date(2026, time.November, 2, 8, 0, 0, 0, req.Location), 30, model.AppointmentStatusConfirmed),
		}
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:30"}, dayTimes(res, req.Location))
	})

	t.Run("lead time on the earlier slot frees the later one", func(t *testing.T) {
		req := overlapping(t)
		req.Now = time.Date(2026, time.November, 2, 8, 10, 0, 0, req.Location)
		res, err := e.Compute(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"08:30"}, dayTimes(res, req.Location))
	})
}

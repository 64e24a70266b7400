package availability

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

var ErrInvalidLocation = errors.New("clinic location is not set")

// Generator expands weekly rules into candidate slots for a window of dates.
type Generator struct {
	log *logger.Logger
}

func NewGenerator(log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{log: log.WithModule("slot_generator")}
}

// Generate returns the candidate slots for every date in [start, end]
// (inclusive, dates in loc), ascending by start. Identical slots from
// overlapping rules appear once; partially overlapping candidates are all
// kept and resolved after conflict filtering. Blacked-out dates contribute
// nothing.
func (g *Generator) Generate(
	rules []model.WeeklyRule,
	blackouts []model.BlackoutDate,
	serviceID uuid.UUID,
	durationMinutes int,
	start, end model.Date,
	loc *time.Location,
) ([]model.Slot, error) {
	if end.Before(start) {
		return nil, apperrors.InvalidRange("window end is before window start")
	}
	if durationMinutes <= 0 {
		return nil, apperrors.InvalidDuration("service duration must be positive")
	}
	if loc == nil {
		return nil, apperrors.Internal(ErrInvalidLocation)
	}

	byWeekday := make(map[time.Weekday][]model.WeeklyRule)
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			g.log.Warn("skipping malformed weekly rule",
				"rule_id", r.ID.String(), "weekday", r.Weekday, "error", err.Error())
			continue
		}
		if !r.AppliesTo(serviceID) {
			continue
		}
		wd := time.Weekday(r.Weekday)
		byWeekday[wd] = append(byWeekday[wd], r)
	}
	if len(byWeekday) == 0 {
		return []model.Slot{}, nil
	}

	closed := blackoutSet(blackouts)
	step := time.Duration(durationMinutes) * time.Minute

	var slots []model.Slot
	for d := start; !d.After(end); d = d.AddDays(1) {
		if closed[d] {
			continue
		}
		for _, r := range byWeekday[d.Weekday()] {
			from := wallClock(d, r.StartTime, loc)
			to := wallClock(d, r.EndTime, loc)
			for s := from; !s.Add(step).After(to); s = s.Add(step) {
				slots = append(slots, model.Slot{Start: s, End: s.Add(step)})
			}
		}
	}
	return uniqueSlots(slots), nil
}

func blackoutSet(blackouts []model.BlackoutDate) map[model.Date]bool {
	set := make(map[model.Date]bool, len(blackouts))
	for _, b := range blackouts {
		set[b.Date] = true
	}
	return set
}

// wallClock converts a local time of day on d into an absolute instant.
// A time that falls inside a DST gap resolves to the transition instant.
// 24:00 is midnight at the start of the next day.
func wallClock(d model.Date, c model.ClockTime, loc *time.Location) time.Time {
	if c.IsEndOfDay() {
		return wallClock(d.AddDays(1), model.ClockTime{}, loc)
	}
	t := time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
	if t.Hour() == c.Hour && t.Minute() == c.Minute && model.DateOf(t, loc) == d {
		return t
	}
	want := time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, time.UTC)
	got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	zoneStart, zoneEnd := t.ZoneBounds()
	if want.After(got) && !zoneEnd.IsZero() {
		return zoneEnd
	}
	if !zoneStart.IsZero() {
		return zoneStart
	}
	return t
}

// uniqueSlots sorts slots and keeps one slot per distinct (start, end).
func uniqueSlots(slots []model.Slot) []model.Slot {
	sortSlots(slots)
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if n := len(out); n > 0 && s.Start.Equal(out[n-1].Start) && s.End.Equal(out[n-1].End) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func sortSlots(slots []model.Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].End.Before(slots[j].End)
		}
		return slots[i].Start.Before(slots[j].Start)
	})
}

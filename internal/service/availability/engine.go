package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

type Reason string

const (
	ReasonServiceNotFound Reason = "service_not_found"
	ReasonServiceInactive Reason = "service_inactive"
)

// Request is everything one computation needs. The engine never reaches
// outside of it, so two computations over equal requests agree.
type Request struct {
	Snapshot       model.ScheduleSnapshot
	Service        *model.Service
	Bookings       []model.Appointment
	Start          model.Date
	End            model.Date
	Location       *time.Location
	Now            time.Time
	MinLeadMinutes int
}

type Result struct {
	ServiceID       uuid.UUID
	TimeZone        string
	Reason          Reason
	ScheduleVersion int64
	Days            []model.DaySlots

	// Service is the catalog entry the result was computed for, if any.
	Service *model.Service
}

// SlotCount is the number of free slots across all days.
func (r *Result) SlotCount() int {
	n := 0
	for _, d := range r.Days {
		n += len(d.Slots)
	}
	return n
}

// Contains reports whether a free slot starts exactly at t.
func (r *Result) Contains(t time.Time) bool {
	for _, d := range r.Days {
		for _, s := range d.Slots {
			if s.Start.Equal(t) {
				return true
			}
		}
	}
	return false
}

type Engine struct {
	generator *Generator
}

func NewEngine(log *logger.Logger) *Engine {
	return &Engine{generator: NewGenerator(log)}
}

// Compute runs generation, conflict filtering and aggregation. Partially
// overlapping candidates are resolved only among free slots, so a booking
// on one of them never hides the other.
func (e *Engine) Compute(req Request) (*Result, error) {
	if req.End.Before(req.Start) {
		return nil, apperrors.InvalidRange("window end is before window start")
	}
	if req.Location == nil {
		return nil, apperrors.Internal(ErrInvalidLocation)
	}

	res := &Result{
		TimeZone:        req.Location.String(),
		ScheduleVersion: req.Snapshot.Version,
	}
	if req.Service == nil {
		res.Reason = ReasonServiceNotFound
		return res, nil
	}
	res.ServiceID = req.Service.ID
	res.Service = req.Service
	if !req.Service.Active {
		res.Reason = ReasonServiceInactive
		return res, nil
	}

	candidates, err := e.generator.Generate(
		req.Snapshot.Rules,
		req.Snapshot.Blackouts,
		req.Service.ID,
		req.Service.DurationMinutes,
		req.Start, req.End,
		req.Location,
	)
	if err != nil {
		return nil, err
	}

	free := ResolveOverlaps(Filter(candidates, req.Bookings, req.Now, req.MinLeadMinutes))
	res.Days = Aggregate(free, req.Start, req.End, req.Snapshot.Blackouts, req.Location)
	return res, nil
}

package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WeeklyRule is a recurring bookable interval anchored to a day of week.
// A nil ServiceID means the rule applies to every service.
type WeeklyRule struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Weekday   int        `db:"weekday" json:"weekday"`
	StartTime ClockTime  `db:"start_time" json:"start_time"`
	EndTime   ClockTime  `db:"end_time" json:"end_time"`
	ServiceID *uuid.UUID `db:"service_id" json:"service_id,omitempty"`
}

func (r WeeklyRule) Validate() error {
	if r.Weekday < int(time.Sunday) || r.Weekday > int(time.Saturday) {
		return fmt.Errorf("weekday %d out of range 0..6", r.Weekday)
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() {
		return errors.New("invalid clock time")
	}
	if r.StartTime.IsEndOfDay() {
		return errors.New("start time cannot be 24:00")
	}
	if r.StartTime.Minutes() >= r.EndTime.Minutes() {
		return fmt.Errorf("start %s is not before end %s", r.StartTime, r.EndTime)
	}
	return nil
}

// AppliesTo reports whether the rule's scope covers serviceID.
func (r WeeklyRule) AppliesTo(serviceID uuid.UUID) bool {
	return r.ServiceID == nil || *r.ServiceID == serviceID
}

type BlackoutSource string

const (
	BlackoutSourceManual BlackoutSource = "manual"
	BlackoutSourceICal   BlackoutSource = "ical"
)

// BlackoutDate closes the clinic for a whole calendar day.
type BlackoutDate struct {
	ID        uuid.UUID      `db:"id" json:"id"`
	Date      Date           `db:"date" json:"date"`
	Reason    string         `db:"reason" json:"reason"`
	Source    BlackoutSource `db:"source" json:"source"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ScheduleSnapshot is a read-only copy of the rule set taken at one
// schedule version together with the blackouts of a window.
type ScheduleSnapshot struct {
	Version   int64
	Rules     []WeeklyRule
	Blackouts []BlackoutDate
}

// ReplaceRulesRequest is the admin payload for swapping the weekly rule set.
type ReplaceRulesRequest struct {
	Rules []RuleInput `json:"rules" binding:"dive"`
}

type RuleInput struct {
	Weekday   *int       `json:"weekday" binding:"required,min=0,max=6"`
	StartTime string     `json:"start_time" binding:"required,clock"`
	EndTime   string     `json:"end_time" binding:"required,clock"`
	ServiceID *uuid.UUID `json:"service_id"`
}

type CreateBlackoutRequest struct {
	Date   string `json:"date" binding:"required,datetime=2006-01-02"`
	Reason string `json:"reason" binding:"max=255"`
}

type ImportHolidaysRequest struct {
	URL   string `json:"url" binding:"omitempty,url"`
	Start string `json:"start" binding:"required,datetime=2006-01-02"`
	End   string `json:"end" binding:"required,datetime=2006-01-02"`
}

type ScheduleChangeKind string

const (
	ScheduleChangeRules     ScheduleChangeKind = "rules"
	ScheduleChangeBlackouts ScheduleChangeKind = "blackouts"
)

// ScheduleChangedEvent is published after any schedule write commits.
type ScheduleChangedEvent struct {
	Kind    ScheduleChangeKind `json:"kind"`
	Version int64              `json:"version,omitempty"`
	Dates   []Date             `json:"dates,omitempty"`
	Source  BlackoutSource     `json:"source,omitempty"`
}

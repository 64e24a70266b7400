package model

import "time"

// Slot is a bookable interval [Start, End) in absolute time.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.Start.Before(end) && s.End.After(start)
}

// DaySlots holds the free slots of one clinic-local calendar date.
type DaySlots struct {
	Date     Date   `json:"date"`
	Blackout bool   `json:"blackout"`
	Slots    []Slot `json:"slots"`
}

package availability

import (
	"sort"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

type interval struct {
	start, end time.Time
}

// Filter drops candidates that overlap an occupying booking or that start
// earlier than now plus the lead time. The result is ascending by start;
// the input slice is never reordered.
func Filter(candidates []model.Slot, bookings []model.Appointment, now time.Time, minLeadMinutes int) []model.Slot {
	cutoff := now.Add(time.Duration(minLeadMinutes) * time.Minute)
	busy := busyIntervals(bookings)

	ordered := candidates
	if !sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) }) {
		ordered = append([]model.Slot(nil), candidates...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })
	}

	out := make([]model.Slot, 0, len(ordered))
	i := 0
	for _, c := range ordered {
		if c.Start.Before(cutoff) {
			continue
		}
		for i < len(busy) && !busy[i].end.After(c.Start) {
			i++
		}
		// Busy intervals are disjoint and sorted, so one that ends after
		// c.Start is the only one that can still overlap c.
		if i < len(busy) && busy[i].start.Before(c.End) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResolveOverlaps keeps the earliest slot of every group of overlapping
// free slots, so the result never offers two slots that cannot both be
// booked. slots must be ascending by start.
func ResolveOverlaps(slots []model.Slot) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if n := len(out); n > 0 && s.Start.Before(out[n-1].End) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// busyIntervals merges occupying bookings into sorted disjoint intervals.
func busyIntervals(bookings []model.Appointment) []interval {
	raw := make([]interval, 0, len(bookings))
	for _, b := range bookings {
		if !b.Occupies() {
			continue
		}
		raw = append(raw, interval{start: b.StartsAt, end: b.EndsAt()})
	}
	sort.Slice(raw, func(i, j int) bool { return raw[i].start.Before(raw[j].start) })

	merged := make([]interval, 0, len(raw))
	for _, iv := range raw {
		n := len(merged)
		if n > 0 && !iv.start.After(merged[n-1].end) {
			if iv.end.After(merged[n-1].end) {
				merged[n-1].end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

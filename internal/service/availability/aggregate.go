package availability

import (
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
)

// Aggregate groups slots by their calendar date in loc. Every date in
// [start, end] is present in the result, in ascending order.
func Aggregate(slots []model.Slot, start, end model.Date, blackouts []model.BlackoutDate, loc *time.Location) []model.DaySlots {
	if end.Before(start) || loc == nil {
		return []model.DaySlots{}
	}
	closed := blackoutSet(blackouts)

	days := make([]model.DaySlots, 0, start.DaysUntil(end)+1)
	index := make(map[model.Date]int)
	for d := start; !d.After(end); d = d.AddDays(1) {
		index[d] = len(days)
		days = append(days, model.DaySlots{Date: d, Blackout: closed[d], Slots: []model.Slot{}})
	}

	for _, s := range slots {
		i, ok := index[model.DateOf(s.Start, loc)]
		if !ok {
			continue
		}
		days[i].Slots = append(days[i].Slots, s)
	}
	return days
}

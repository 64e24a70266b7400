// Package calendar imports clinic closures from iCalendar feeds.
package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

const maxFeedBytes = 5 << 20

// Holiday is one closed calendar day taken from an all-day VEVENT.
type Holiday struct {
	UID     string
	Date    model.Date
	Summary string
}

type Fetcher struct {
	client *http.Client
	log    *logger.Logger
}

func NewFetcher(client *http.Client, log *logger.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Fetcher{client: client, log: log.WithModule("ical")}
}

// FetchHolidays downloads the feed at url and returns its all-day events
// falling within [start, end].
func (f *Fetcher) FetchHolidays(ctx context.Context, url string, start, end model.Date) ([]Holiday, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	holidays, err := ParseHolidays(string(body), start, end)
	if err != nil {
		return nil, err
	}
	f.log.Info("calendar feed parsed", "url", url, "holidays", len(holidays))
	return holidays, nil
}

// ParseHolidays decodes an iCalendar document. Timed events and cancelled
// events are ignored; multi-day events contribute every day they cover.
func ParseHolidays(body string, start, end model.Date) ([]Holiday, error) {
	if err := validateICalFormat(body); err != nil {
		return nil, err
	}

	decoder := ical.NewDecoder(strings.NewReader(body))
	seen := make(map[model.Date]bool)
	var holidays []Holiday

	add := func(h Holiday) {
		if h.Date.Before(start) || h.Date.After(end) || seen[h.Date] {
			return
		}
		seen[h.Date] = true
		holidays = append(holidays, h)
	}

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent || isCancelled(comp) {
				continue
			}
			first, days, ok := allDaySpan(comp)
			if !ok {
				continue
			}
			summary := propValue(comp, ical.PropSummary)
			uid := propValue(comp, ical.PropUID)

			starts := []model.Date{first}
			if comp.Props.Get(ical.PropRecurrenceRule) != nil {
				occurrences, err := expand(comp, start.AddDays(-days), end)
				if err != nil {
					return nil, fmt.Errorf("failed to expand recurrence of %q: %w", summary, err)
				}
				starts = occurrences
			}

			for _, s := range starts {
				for i := 0; i < days; i++ {
					add(Holiday{UID: uid, Date: s.AddDays(i), Summary: summary})
				}
			}
		}
	}

	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Date.Before(holidays[j].Date) })
	return holidays, nil
}

// allDaySpan returns the first date and length in days of an all-day event.
func allDaySpan(comp *ical.Component) (model.Date, int, bool) {
	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return model.Date{}, 0, false
	}
	first, ok := parseDateValue(startProp)
	if !ok {
		return model.Date{}, 0, false
	}

	days := 1
	if endProp := comp.Props.Get(ical.PropDateTimeEnd); endProp != nil {
		if last, ok := parseDateValue(endProp); ok && last.After(first) {
			days = first.DaysUntil(last)
		}
	}
	return first, days, true
}

func parseDateValue(prop *ical.Prop) (model.Date, bool) {
	if prop.ValueType() != ical.ValueDate && len(prop.Value) != len("20060102") {
		return model.Date{}, false
	}
	t, err := time.Parse("20060102", prop.Value)
	if err != nil {
		return model.Date{}, false
	}
	return model.DateOf(t, time.UTC), true
}

func expand(comp *ical.Component, from, to model.Date) ([]model.Date, error) {
	set, err := comp.RecurrenceSet(time.UTC)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, nil
	}
	var dates []model.Date
	for _, t := range set.Between(from.In(time.UTC), to.In(time.UTC), true) {
		dates = append(dates, model.DateOf(t, time.UTC))
	}
	return dates, nil
}

func isCancelled(comp *ical.Component) bool {
	return strings.EqualFold(propValue(comp, ical.PropStatus), "CANCELLED")
}

func propValue(comp *ical.Component, name string) string {
	if p := comp.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

func validateICalFormat(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		preview := trimmed
		if len(preview) > 100 {
			preview = preview[:100]
		}
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR, got: %s", preview)
	}
	return nil
}

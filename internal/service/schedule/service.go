package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	"github.com/jwalitptl/clinic-booking/pkg/calendar"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

const DefaultMaxImportDays = 400

// HolidaySource fetches closed days from an external calendar.
type HolidaySource interface {
	FetchHolidays(ctx context.Context, url string, start, end model.Date) ([]calendar.Holiday, error)
}

type Config struct {
	// ICalURL is used when an import request names no feed.
	ICalURL       string
	MaxImportDays int
}

// RuleSet is the weekly rule set at one schedule version.
type RuleSet struct {
	Version int64              `json:"version"`
	Rules   []model.WeeklyRule `json:"rules"`
}

// ImportResult summarizes one holiday import.
type ImportResult struct {
	Fetched int          `json:"fetched"`
	Added   int          `json:"added"`
	Dates   []model.Date `json:"dates"`
}

type Service struct {
	tx        repository.Transactor
	publisher messaging.Publisher
	holidays  HolidaySource
	cfg       Config
	metrics   *metrics.Metrics
	log       *logger.Logger
	now       func() time.Time
}

func NewService(
	tx repository.Transactor,
	publisher messaging.Publisher,
	holidays HolidaySource,
	cfg Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxImportDays <= 0 {
		cfg.MaxImportDays = DefaultMaxImportDays
	}
	return &Service{
		tx:        tx,
		publisher: publisher,
		holidays:  holidays,
		cfg:       cfg,
		metrics:   m,
		log:       log.WithModule("schedule"),
		now:       time.Now,
	}
}

func (s *Service) ListWeeklyRules(ctx context.Context) (*RuleSet, error) {
	set := &RuleSet{}
	err := s.tx.ReadOnly(ctx, func(r repository.Repositories) error {
		var err error
		if set.Version, err = r.Schedule.ScheduleVersion(ctx); err != nil {
			return err
		}
		set.Rules, err = r.Schedule.ListWeeklyRules(ctx)
		return err
	})
	if err != nil {
		return nil, translate(err, "weekly rules", "failed to list weekly rules")
	}
	if set.Rules == nil {
		set.Rules = []model.WeeklyRule{}
	}
	return set, nil
}

// ReplaceWeeklyRules swaps the whole rule set atomically. An empty request
// closes the clinic on every weekday.
func (s *Service) ReplaceWeeklyRules(ctx context.Context, req *model.ReplaceRulesRequest) (*RuleSet, error) {
	rules, err := parseRules(req.Rules)
	if err != nil {
		return nil, err
	}

	var version int64
	err = s.tx.WithTx(ctx, nil, func(r repository.Repositories) error {
		var err error
		version, err = r.Schedule.ReplaceWeeklyRules(ctx, rules)
		return err
	})
	if err != nil {
		return nil, translate(err, "weekly rules", "failed to replace weekly rules")
	}

	s.log.Info("weekly rules replaced", "version", version, "rules", len(rules))
	s.publish(ctx, messaging.TopicScheduleChanged, model.ScheduleChangedEvent{
		Kind:    model.ScheduleChangeRules,
		Version: version,
	})
	return &RuleSet{Version: version, Rules: rules}, nil
}

func parseRules(inputs []model.RuleInput) ([]model.WeeklyRule, error) {
	rules := make([]model.WeeklyRule, 0, len(inputs))
	for i, in := range inputs {
		if in.Weekday == nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("rule %d: weekday is required", i), nil)
		}
		start, err := model.ParseClock(in.StartTime)
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("rule %d: invalid start_time", i), err)
		}
		end, err := model.ParseClock(in.EndTime)
		if err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("rule %d: invalid end_time", i), err)
		}
		rule := model.WeeklyRule{
			ID:        uuid.New(),
			Weekday:   *in.Weekday,
			StartTime: start,
			EndTime:   end,
			ServiceID: in.ServiceID,
		}
		if err := rule.Validate(); err != nil {
			return nil, apperrors.NewBadRequest(fmt.Sprintf("rule %d: %v", i, err), err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *Service) ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, apperrors.InvalidRange("a start date on or before the end date is required")
	}

	var blackouts []model.BlackoutDate
	err := s.tx.ReadOnly(ctx, func(r repository.Repositories) error {
		var err error
		blackouts, err = r.Schedule.ListBlackoutDates(ctx, start, end)
		return err
	})
	if err != nil {
		return nil, translate(err, "blackout date", "failed to list blackout dates")
	}
	if blackouts == nil {
		blackouts = []model.BlackoutDate{}
	}
	return blackouts, nil
}

func (s *Service) AddBlackoutDate(ctx context.Context, req *model.CreateBlackoutRequest) (*model.BlackoutDate, error) {
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return nil, apperrors.NewBadRequest("date must be formatted as YYYY-MM-DD", err)
	}

	blackout := model.BlackoutDate{
		ID:        uuid.New(),
		Date:      date,
		Reason:    strings.TrimSpace(req.Reason),
		Source:    model.BlackoutSourceManual,
		CreatedAt: s.now().UTC(),
	}

	var added int
	err = s.tx.WithTx(ctx, nil, func(r repository.Repositories) error {
		var err error
		added, err = r.Schedule.UpsertBlackoutDates(ctx, []model.BlackoutDate{blackout})
		return err
	})
	if err != nil {
		return nil, translate(err, "blackout date", "failed to add blackout date")
	}
	if added == 0 {
		return nil, apperrors.Conflict(fmt.Sprintf("%s is already a blackout date", date), nil)
	}

	s.log.Info("blackout date added", "date", date.String())
	s.publish(ctx, messaging.TopicScheduleChanged, model.ScheduleChangedEvent{
		Kind:   model.ScheduleChangeBlackouts,
		Dates:  []model.Date{date},
		Source: model.BlackoutSourceManual,
	})
	return &blackout, nil
}

func (s *Service) DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error {
	err := s.tx.WithTx(ctx, nil, func(r repository.Repositories) error {
		return r.Schedule.DeleteBlackoutDate(ctx, id)
	})
	if err != nil {
		return translate(err, "blackout date", "failed to delete blackout date")
	}

	s.log.Info("blackout date deleted", "blackout_id", id.String())
	s.publish(ctx, messaging.TopicScheduleChanged, model.ScheduleChangedEvent{Kind: model.ScheduleChangeBlackouts})
	return nil
}

// ImportHolidays turns the all-day events of an iCalendar feed into
// blackout dates. Days that are already blacked out are left untouched.
func (s *Service) ImportHolidays(ctx context.Context, url string, start, end model.Date) (*ImportResult, error) {
	if url == "" {
		url = s.cfg.ICalURL
	}
	if url == "" {
		return nil, apperrors.NewBadRequest("no holiday calendar url configured", nil)
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return nil, apperrors.InvalidRange("a start date on or before the end date is required")
	}
	if days := start.DaysUntil(end) + 1; days > s.cfg.MaxImportDays {
		return nil, apperrors.InvalidRange(fmt.Sprintf("import window of %d days exceeds the maximum of %d", days, s.cfg.MaxImportDays))
	}
	if s.holidays == nil {
		return nil, apperrors.Internal(errors.New("holiday source not configured"))
	}

	holidays, err := s.holidays.FetchHolidays(ctx, url, start, end)
	if err != nil {
		s.countImport("fetch_error")
		return nil, apperrors.Unavailable("holiday calendar", err)
	}

	created := s.now().UTC()
	blackouts := make([]model.BlackoutDate, 0, len(holidays))
	dates := make([]model.Date, 0, len(holidays))
	for _, h := range holidays {
		blackouts = append(blackouts, model.BlackoutDate{
			ID:        uuid.New(),
			Date:      h.Date,
			Reason:    h.Summary,
			Source:    model.BlackoutSourceICal,
			CreatedAt: created,
		})
		dates = append(dates, h.Date)
	}

	result := &ImportResult{Fetched: len(holidays), Dates: dates}
	if len(blackouts) > 0 {
		err = s.tx.WithTx(ctx, nil, func(r repository.Repositories) error {
			var err error
			result.Added, err = r.Schedule.UpsertBlackoutDates(ctx, blackouts)
			return err
		})
		if err != nil {
			s.countImport("store_error")
			return nil, translate(err, "blackout date", "failed to store imported holidays")
		}
	}

	s.countImport("success")
	s.log.Info("holidays imported", "url", url, "fetched", result.Fetched, "added", result.Added)
	if result.Added > 0 {
		s.publish(ctx, messaging.TopicBlackoutDatesImported, model.ScheduleChangedEvent{
			Kind:   model.ScheduleChangeBlackouts,
			Dates:  dates,
			Source: model.BlackoutSourceICal,
		})
	}
	return result, nil
}

func (s *Service) publish(ctx context.Context, topic string, event model.ScheduleChangedEvent) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.log.Error(err, "failed to publish schedule event", "topic", topic)
	}
}

func (s *Service) countImport(status string) {
	if s.metrics != nil {
		s.metrics.HolidayImports.WithLabelValues(status).Inc()
	}
}

func translate(err error, resource, action string) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.Conflict("the schedule was changed concurrently, please retry", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Unavailable("schedule store", err)
	default:
		return apperrors.Internal(fmt.Errorf("%s: %w", action, err))
	}
}

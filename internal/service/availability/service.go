package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/repository"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
)

const (
	DefaultMaxWindowDays = 62
	DefaultRuleCacheTTL  = 10 * time.Minute
)

type Config struct {
	Location       *time.Location
	MinLeadMinutes int
	MaxWindowDays  int
	RuleCacheTTL   time.Duration
}

// Query asks for the free slots of one service over [Start, End].
type Query struct {
	ServiceID uuid.UUID
	Start     model.Date
	End       model.Date
}

type Service struct {
	tx      repository.Transactor
	engine  *Engine
	rules   *cache.Cache
	cfg     Config
	metrics *metrics.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewService(tx repository.Transactor, cfg Config, m *metrics.Metrics, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxWindowDays <= 0 {
		cfg.MaxWindowDays = DefaultMaxWindowDays
	}
	if cfg.RuleCacheTTL <= 0 {
		cfg.RuleCacheTTL = DefaultRuleCacheTTL
	}
	return &Service{
		tx:      tx,
		engine:  NewEngine(log),
		rules:   cache.New(cfg.RuleCacheTTL, 2*cfg.RuleCacheTTL),
		cfg:     cfg,
		metrics: m,
		log:     log.WithModule("availability"),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for the lead-time cutoff.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location {
	return s.cfg.Location
}

// GetAvailability loads the schedule, service and bookings in one
// read-only snapshot and computes the free slots of the window.
func (s *Service) GetAvailability(ctx context.Context, q Query) (*Result, error) {
	started := time.Now()
	if err := s.ValidateWindow(q.Start, q.End); err != nil {
		s.observe("invalid", nil, started)
		return nil, err
	}

	var res *Result
	err := s.tx.ReadOnly(ctx, func(r repository.Repositories) error {
		var err error
		res, err = s.ComputeIn(ctx, r, q, s.now())
		return err
	})
	if err != nil {
		outcome := "error"
		if apperrors.HasCode(err, apperrors.ErrUnavailable) {
			outcome = "unavailable"
		} else if _, ok := apperrors.As(err); !ok {
			// Begin or commit failed; the data source is the problem.
			err = apperrors.Unavailable("schedule store", err)
			outcome = "unavailable"
		}
		s.observe(outcome, nil, started)
		s.log.Warn("availability computation failed",
			"service_id", q.ServiceID.String(), "start", q.Start.String(), "end", q.End.String(), "error", err.Error())
		return nil, err
	}

	outcome := "ok"
	if res.Reason != "" {
		outcome = string(res.Reason)
	}
	s.observe(outcome, res, started)
	return res, nil
}

func (s *Service) ValidateWindow(start, end model.Date) error {
	if start.IsZero() || end.IsZero() {
		return apperrors.InvalidRange("start and end dates are required")
	}
	if end.Before(start) {
		return apperrors.InvalidRange("window end is before window start")
	}
	if days := start.DaysUntil(end) + 1; days > s.cfg.MaxWindowDays {
		return apperrors.InvalidRange(fmt.Sprintf("window of %d days exceeds the maximum of %d", days, s.cfg.MaxWindowDays))
	}
	return nil
}

// ComputeIn runs a computation against repositories the caller already
// bound to a transaction.
func (s *Service) ComputeIn(ctx context.Context, r repository.Repositories, q Query, now time.Time) (*Result, error) {
	req := Request{
		Start:          q.Start,
		End:            q.End,
		Location:       s.cfg.Location,
		Now:            now,
		MinLeadMinutes: s.cfg.MinLeadMinutes,
	}

	svc, err := r.Services.Get(ctx, q.ServiceID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.engine.Compute(req)
	case err != nil:
		return nil, apperrors.Unavailable("service catalog", err)
	}
	req.Service = svc
	if !svc.Active {
		return s.engine.Compute(req)
	}

	if req.Snapshot, err = s.snapshot(ctx, r.Schedule, q.Start, q.End); err != nil {
		return nil, err
	}

	from := q.Start.In(s.cfg.Location)
	to := q.End.AddDays(1).In(s.cfg.Location)
	if req.Bookings, err = r.Appointments.ListOccupying(ctx, from, to); err != nil {
		return nil, apperrors.Unavailable("booking store", err)
	}

	return s.engine.Compute(req)
}

func (s *Service) snapshot(ctx context.Context, repo repository.ScheduleRepository, start, end model.Date) (model.ScheduleSnapshot, error) {
	version, err := repo.ScheduleVersion(ctx)
	if err != nil {
		return model.ScheduleSnapshot{}, apperrors.Unavailable("rule store", err)
	}

	rules, err := s.weeklyRules(ctx, repo, version)
	if err != nil {
		return model.ScheduleSnapshot{}, apperrors.Unavailable("rule store", err)
	}

	blackouts, err := repo.ListBlackoutDates(ctx, start, end)
	if err != nil {
		return model.ScheduleSnapshot{}, apperrors.Unavailable("rule store", err)
	}

	return model.ScheduleSnapshot{Version: version, Rules: rules, Blackouts: blackouts}, nil
}

func ruleCacheKey(version int64) string {
	return fmt.Sprintf("weekly_rules:v%d", version)
}

func (s *Service) weeklyRules(ctx context.Context, repo repository.ScheduleRepository, version int64) ([]model.WeeklyRule, error) {
	key := ruleCacheKey(version)
	if cached, ok := s.rules.Get(key); ok {
		s.countCache("hit")
		return cached.([]model.WeeklyRule), nil
	}
	s.countCache("miss")

	rules, err := repo.ListWeeklyRules(ctx)
	if err != nil {
		return nil, err
	}
	s.rules.Set(key, rules, cache.DefaultExpiration)
	s.log.Debug("weekly rules cached", "version", version, "rules", len(rules))
	return rules, nil
}

// InvalidateRules drops every cached rule set.
func (s *Service) InvalidateRules() {
	s.rules.Flush()
}

func (s *Service) countCache(result string) {
	if s.metrics != nil {
		s.metrics.RuleCacheLookups.WithLabelValues(result).Inc()
	}
}

func (s *Service) observe(outcome string, res *Result, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.AvailabilityRequests.WithLabelValues(outcome).Inc()
	s.metrics.AvailabilityLatency.Observe(time.Since(started).Seconds())
	if res != nil {
		s.metrics.SlotsReturned.Observe(float64(res.SlotCount()))
	}
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/schedule"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
)

// HolidayImporter stores the holidays of a feed as blackout dates.
type HolidayImporter interface {
	ImportHolidays(ctx context.Context, url string, start, end model.Date) (*schedule.ImportResult, error)
}

type HolidaySyncConfig struct {
	URL           string
	Interval      time.Duration
	LookaheadDays int
	Location      *time.Location
	RetryAttempts int
	RetryDelay    time.Duration
}

// HolidaySyncWorker periodically imports the clinic's holiday calendar.
type HolidaySyncWorker struct {
	importer HolidayImporter
	config   HolidaySyncConfig
	logger   *logger.Logger
	now      func() time.Time
}

func NewHolidaySyncWorker(importer HolidayImporter, config HolidaySyncConfig, log *logger.Logger) (*HolidaySyncWorker, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("holiday calendar url is required")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("sync interval must be greater than 0")
	}
	if config.LookaheadDays <= 0 {
		return nil, fmt.Errorf("lookahead days must be greater than 0")
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HolidaySyncWorker{
		importer: importer,
		config:   config,
		logger:   log.WithModule("holiday_sync"),
		now:      time.Now,
	}, nil
}

// Start syncs once right away and then on every tick until ctx is done.
func (w *HolidaySyncWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("Starting holiday sync", "interval", w.config.Interval.String())
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down holiday sync")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *HolidaySyncWorker) runOnce(ctx context.Context) {
	if err := w.Sync(ctx); err != nil {
		w.logger.Error(err, "Holiday sync failed")
	}
}

// Sync imports the lookahead window starting today in the clinic zone.
func (w *HolidaySyncWorker) Sync(ctx context.Context) error {
	start := model.DateOf(w.now(), w.config.Location)
	end := start.AddDays(w.config.LookaheadDays - 1)

	var res *schedule.ImportResult
	err := retry(ctx, w.config.RetryAttempts, w.config.RetryDelay, func() error {
		var err error
		res, err = w.importer.ImportHolidays(ctx, w.config.URL, start, end)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to import holidays for %s..%s: %w", start, end, err)
	}

	w.logger.Info("Holiday sync finished",
		"start", start.String(), "end", end.String(), "fetched", res.Fetched, "added", res.Added)
	return nil
}

// retry calls fn up to attempts times with a linearly growing delay.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay * time.Duration(i+1)):
		}
	}
	return err
}

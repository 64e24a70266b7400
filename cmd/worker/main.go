package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-booking/internal/config"
	"github.com/jwalitptl/clinic-booking/internal/handler/health"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/repository/postgres"
	"github.com/jwalitptl/clinic-booking/internal/service/notification"
	"github.com/jwalitptl/clinic-booking/internal/service/schedule"
	"github.com/jwalitptl/clinic-booking/internal/worker"
	"github.com/jwalitptl/clinic-booking/pkg/calendar"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/notify"
)

const metricsNamespace = "clinic_booking"

func main() {
	cfg, err := config.LoadConfig(os.Getenv("BOOKING_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	workerLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Log.Console,
	}).WithModule("worker")
	zl := *workerLog.Zerolog()

	loc, err := cfg.Location()
	if err != nil {
		workerLog.Fatal(err, "invalid clinic time zone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		workerLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, metricsNamespace, "worker")
	store := postgres.NewStore(db).WithMetrics(m)

	checks := map[string]health.Checker{"database": store}

	// Without Redis the worker cannot see events published by the API, so
	// only the holiday sync runs.
	var broker messaging.Broker
	if cfg.Redis.Enabled {
		rb, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, zl)
		if err != nil {
			workerLog.Fatal(err, "failed to connect to Redis")
		}
		broker = rb
		if pinger, ok := rb.(health.Checker); ok {
			checks["redis"] = pinger
		}
	} else {
		workerLog.Warn("Redis disabled, appointment notifications are off")
		broker = messaging.NewMemoryBroker()
	}
	bus := messaging.NewBrokerAdapter(broker, workerLog, m)
	defer bus.Close()

	var notifier notify.Notifier
	if cfg.Mail.Enabled {
		notifier = notify.NewMailer(notify.Config{
			Host:       cfg.Mail.Host,
			Port:       cfg.Mail.Port,
			Username:   cfg.Mail.Username,
			Password:   cfg.Mail.Password,
			From:       cfg.Mail.From,
			SkipVerify: cfg.Mail.SkipVerify,
		})
	} else {
		notifier = notify.LogNotifier{Log: workerLog.Info}
	}

	notifications := notification.NewService(notifier, notification.Config{
		ClinicName: cfg.Clinic.Name,
		Location:   loc,
	}, m, workerLog)

	consumer := worker.NewEventConsumer(bus, workerLog).
		Handle(messaging.TopicAppointmentBooked, notifications.HandleEvent).
		Handle(messaging.TopicAppointmentCancelled, notifications.HandleEvent)
	if err := consumer.Start(ctx); err != nil {
		workerLog.Fatal(err, "failed to start event consumer")
	}

	if cfg.Holidays.ICalURL != "" {
		fetcher := calendar.NewFetcher(&http.Client{Timeout: 30 * time.Second}, workerLog)
		scheduleSvc := schedule.NewService(store, bus, fetcher, schedule.Config{
			ICalURL: cfg.Holidays.ICalURL,
		}, m, workerLog)

		holidaySync, err := worker.NewHolidaySyncWorker(scheduleSvc, worker.HolidaySyncConfig{
			URL:           cfg.Holidays.ICalURL,
			Interval:      cfg.Holidays.SyncInterval,
			LookaheadDays: cfg.Holidays.LookaheadDays,
			Location:      loc,
		}, workerLog)
		if err != nil {
			workerLog.Fatal(err, "invalid holiday sync configuration")
		}
		go holidaySync.Start(ctx)
	} else {
		workerLog.Info("No holiday calendar configured, sync disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery(zl), middleware.ErrorHandler(zl))
	health.NewHandler(checks, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).
		RegisterRoutes(engine.Group(""))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		workerLog.Info("Starting health server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			workerLog.Error(err, "health server failed")
		}
	}()

	<-ctx.Done()
	workerLog.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		workerLog.Error(err, "health server forced to shutdown")
	}

	workerLog.Info("Worker exited properly")
}

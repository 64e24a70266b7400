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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-booking/internal/config"
	appointmentHandler "github.com/jwalitptl/clinic-booking/internal/handler/appointment"
	authHandler "github.com/jwalitptl/clinic-booking/internal/handler/auth"
	availabilityHandler "github.com/jwalitptl/clinic-booking/internal/handler/availability"
	"github.com/jwalitptl/clinic-booking/internal/handler/health"
	promHandler "github.com/jwalitptl/clinic-booking/internal/handler/prometheus"
	scheduleHandler "github.com/jwalitptl/clinic-booking/internal/handler/schedule"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/repository/postgres"
	"github.com/jwalitptl/clinic-booking/internal/router"
	appointmentService "github.com/jwalitptl/clinic-booking/internal/service/appointment"
	authService "github.com/jwalitptl/clinic-booking/internal/service/auth"
	"github.com/jwalitptl/clinic-booking/internal/service/availability"
	scheduleService "github.com/jwalitptl/clinic-booking/internal/service/schedule"
	"github.com/jwalitptl/clinic-booking/pkg/auth"
	"github.com/jwalitptl/clinic-booking/pkg/calendar"
	"github.com/jwalitptl/clinic-booking/pkg/logger"
	"github.com/jwalitptl/clinic-booking/pkg/messaging"
	"github.com/jwalitptl/clinic-booking/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-booking/pkg/metrics"
	"github.com/jwalitptl/clinic-booking/pkg/security"
)

const metricsNamespace = "clinic_booking"

func main() {
	cfg, err := config.LoadConfig(os.Getenv("BOOKING_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLog := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Log.Console,
	}).WithModule("api")
	zl := *appLog.Zerolog()

	loc, err := cfg.Location()
	if err != nil {
		appLog.Fatal(err, "invalid clinic time zone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		appLog.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg, metricsNamespace, "api")
	store := postgres.NewStore(db).WithMetrics(m)
	httpMetrics := promHandler.New(reg, metricsNamespace)

	checks := map[string]health.Checker{"database": store}

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
			appLog.Fatal(err, "failed to connect to Redis")
		}
		broker = rb
		if pinger, ok := rb.(health.Checker); ok {
			checks["redis"] = pinger
		}
	} else {
		appLog.Warn("Redis disabled, events stay in process")
		broker = messaging.NewMemoryBroker()
	}
	bus := messaging.NewBrokerAdapter(broker, appLog, m)
	defer bus.Close()

	availabilitySvc := availability.NewService(store, availability.Config{
		Location:       loc,
		MinLeadMinutes: cfg.Clinic.MinLeadMinutes,
		MaxWindowDays:  cfg.Clinic.MaxWindowDays,
		RuleCacheTTL:   cfg.Cache.RuleTTL,
	}, m, appLog)
	appointmentSvc := appointmentService.NewService(store, availabilitySvc, bus, m, appLog)
	fetcher := calendar.NewFetcher(&http.Client{Timeout: 30 * time.Second}, appLog)
	scheduleSvc := scheduleService.NewService(store, bus, fetcher, scheduleService.Config{
		ICalURL: cfg.Holidays.ICalURL,
	}, m, appLog)

	jwtSvc := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	authSvc := authService.NewService(authService.Credentials{
		Email:        cfg.Auth.AdminEmail,
		PasswordHash: cfg.Auth.AdminPasswordHash,
	}, security.NewBcryptHasher(0), jwtSvc, appLog)

	// Other API replicas publish rule edits; drop cached rules when they do.
	if err := bus.Subscribe(ctx, messaging.TopicScheduleChanged, func(context.Context, messaging.Event) error {
		availabilitySvc.InvalidateRules()
		return nil
	}); err != nil {
		appLog.Fatal(err, "failed to subscribe to schedule changes")
	}

	middleware.RegisterValidators()

	cacheCfg := middleware.DefaultCacheConfig()
	if cfg.Cache.ResponseMaxAge > 0 {
		cacheCfg.MaxAge = cfg.Cache.ResponseMaxAge
	}
	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Security.AllowedOrigins
	}
	if len(cfg.Security.AllowedMethods) > 0 {
		corsCfg.AllowMethods = cfg.Security.AllowedMethods
	}
	if len(cfg.Security.AllowedHeaders) > 0 {
		corsCfg.AllowHeaders = cfg.Security.AllowedHeaders
	}

	r := router.NewRouter(
		router.Handlers{
			Health:       health.NewHandler(checks, httpMetrics.Handler()),
			Auth:         authHandler.NewHandler(authSvc),
			Availability: availabilityHandler.NewHandler(availabilitySvc),
			Appointment:  appointmentHandler.NewHandler(appointmentSvc),
			Schedule:     scheduleHandler.NewHandler(scheduleSvc),
		},
		middleware.NewAuthMiddleware(authSvc),
		httpMetrics,
		zl,
		router.RouterConfig{
			Mode:             cfg.Server.Mode,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			CORSConfig:       corsCfg,
			CacheConfig:      cacheCfg,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		appLog.Info("Starting server", "addr", srv.Addr, "time_zone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal(err, "failed to start server")
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(err, "server forced to shutdown")
	}

	appLog.Info("Server exited properly")
}

package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-booking/internal/handler/prometheus"
	"github.com/jwalitptl/clinic-booking/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers are the route groups the API serves. Nil entries are skipped.
type Handlers struct {
	Health       Handler
	Auth         Handler
	Availability Handler
	Appointment  Handler
	Schedule     Handler
}

type RouterConfig struct {
	Mode             string
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
	CacheConfig      middleware.CacheConfig
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
}

func NewRouter(
	handlers Handlers,
	auth *middleware.AuthMiddleware,
	metrics *prometheus.Handler,
	log zerolog.Logger,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.ErrorHandler(log),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig()),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(config.MaxBodyBytes),
		middleware.Timeout(config.RequestTimeout),
	)

	return &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
	}
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	// Health checks stay outside the rate limiter.
	register(api, r.handlers.Health)

	public := api.Group("")
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		public.Use(limiter.RateLimit())
	}

	cached := public.Group("")
	cached.Use(middleware.Cache(r.config.CacheConfig))
	register(cached, r.handlers.Availability)

	register(public, r.handlers.Auth)
	register(public, r.handlers.Appointment)

	admin := public.Group("/admin")
	admin.Use(r.auth.RequireAdmin())
	register(admin, r.handlers.Schedule)
}

func register(rg *gin.RouterGroup, h Handler) {
	if h != nil {
		h.RegisterRoutes(rg)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CacheConfig represents cache control configuration
type CacheConfig struct {
	MaxAge               time.Duration
	Private              bool
	StaleWhileRevalidate time.Duration
	Vary                 []string
}

// DefaultCacheConfig suits availability reads: slots change on every
// booking so the window is short.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:  15 * time.Second,
		Private: true,
		Vary:    []string{"Accept"},
	}
}

// Cache sets Cache-Control on successful GET responses and no-store on
// everything else.
func Cache(config CacheConfig) gin.HandlerFunc {
	directives := []string{"public"}
	if config.Private {
		directives[0] = "private"
	}
	if config.MaxAge > 0 {
		directives = append(directives, "max-age="+strconv.Itoa(int(config.MaxAge.Seconds())))
	} else {
		directives = append(directives, "no-cache")
	}
	if config.StaleWhileRevalidate > 0 {
		directives = append(directives, "stale-while-revalidate="+strconv.Itoa(int(config.StaleWhileRevalidate.Seconds())))
	}
	cacheable := strings.Join(directives, ", ")
	vary := strings.Join(config.Vary, ", ")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Header("Cache-Control", "no-store")
			c.Next()
			return
		}

		c.Header("Cache-Control", cacheable)
		if vary != "" {
			c.Header("Vary", vary)
		}
		c.Writer = &cacheWriter{ResponseWriter: c.Writer}
		c.Next()
	}
}

// cacheWriter withdraws the cache headers when an error status is set.
type cacheWriter struct {
	gin.ResponseWriter
}

func (w *cacheWriter) WriteHeader(code int) {
	if code >= http.StatusBadRequest {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.ResponseWriter.WriteHeader(code)
}

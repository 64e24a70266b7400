package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/model"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/httputil"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "abc")
	w := serve(r, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, strings.Repeat("x", maxRequestIDLength+1))
	w = serve(r, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery(t *testing.T) {
	r := newEngine(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/", func(c *gin.Context) { panic("boom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestErrorHandlerWritesUnansweredErrors(t *testing.T) {
	var buf bytes.Buffer
	r := newEngine(ErrorHandler(zerolog.New(&buf)))
	r.GET("/", func(c *gin.Context) { _ = c.Error(apperrors.NewNotFound("service", nil)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "service not found")
	assert.Contains(t, buf.String(), "Request error")
}

func TestRateLimiterIsPerClient(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2})
	r := newEngine(rl.RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
}

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://booking.example.com"}
	r := newEngine(CORS(cfg))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://booking.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://booking.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCacheHeaders(t *testing.T) {
	r := newEngine(Cache(CacheConfig{MaxAge: time.Minute, Private: true}))
	r.GET("/ok", func(c *gin.Context) { httputil.RespondWithSuccess(c, "x") })
	r.GET("/fail", func(c *gin.Context) { httputil.RespondWithError(c, apperrors.InvalidRange("bad")) })
	r.POST("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, "private, max-age=60", serve(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil)).Header().Get("Cache-Control"))
	assert.Equal(t, "no-store", serve(r, httptest.NewRequest(http.MethodPost, "/ok", nil)).Header().Get("Cache-Control"))
}

func TestSizeLimit(t *testing.T) {
	r := newEngine(SizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := newEngine(Timeout(time.Second))
	r.GET("/", func(c *gin.Context) {
		_, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

type tokenFunc func(string) (*model.TokenClaims, error)

func (f tokenFunc) ValidateToken(token string) (*model.TokenClaims, error) { return f(token) }

func TestRequireAdmin(t *testing.T) {
	validator := tokenFunc(func(token string) (*model.TokenClaims, error) {
		switch token {
		case "admin":
			return &model.TokenClaims{Role: model.RoleAdmin}, nil
		case "staff":
			return nil, apperrors.Forbidden(errors.New("admin role required"))
		default:
			return nil, errors.New("signature mismatch")
		}
	})
	r := newEngine(NewAuthMiddleware(validator).RequireAdmin())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer junk", http.StatusUnauthorized},
		{"Bearer staff", http.StatusForbidden},
		{"bearer admin", http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.status, serve(r, req).Code, tt.header)
	}
}

func TestClockValidator(t *testing.T) {
	require.NoError(t, RegisterValidators())
	require.NoError(t, RegisterValidators())

	type payload struct {
		At string `json:"at" binding:"required,clock"`
	}
	r := newEngine()
	r.POST("/", func(c *gin.Context) {
		var p payload
		if err := c.ShouldBindJSON(&p); err != nil {
			httputil.RespondWithBindError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(r, req)
	}

	assert.Equal(t, http.StatusOK, post(`{"at":"08:30"}`).Code)
	w := post(`{"at":"25:00"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"at"`)
	assert.Contains(t, w.Body.String(), "HH:MM")
}

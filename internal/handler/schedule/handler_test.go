package schedule

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-booking/internal/middleware"
	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/schedule"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) ListWeeklyRules(ctx context.Context) (*schedule.RuleSet, error) {
	args := m.Called(ctx)
	set, _ := args.Get(0).(*schedule.RuleSet)
	return set, args.Error(1)
}

func (m *mockService) ReplaceWeeklyRules(ctx context.Context, req *model.ReplaceRulesRequest) (*schedule.RuleSet, error) {
	args := m.Called(ctx, req)
	set, _ := args.Get(0).(*schedule.RuleSet)
	return set, args.Error(1)
}

func (m *mockService) ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error) {
	args := m.Called(ctx, start, end)
	b, _ := args.Get(0).([]model.BlackoutDate)
	return b, args.Error(1)
}

func (m *mockService) AddBlackoutDate(ctx context.Context, req *model.CreateBlackoutRequest) (*model.BlackoutDate, error) {
	args := m.Called(ctx, req)
	b, _ := args.Get(0).(*model.BlackoutDate)
	return b, args.Error(1)
}

func (m *mockService) DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockService) ImportHolidays(ctx context.Context, url string, start, end model.Date) (*schedule.ImportResult, error) {
	args := m.Called(ctx, url, start, end)
	res, _ := args.Get(0).(*schedule.ImportResult)
	return res, args.Error(1)
}

func setup(t *testing.T) (*gin.Engine, *mockService) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	svc := &mockService{}
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/admin"))
	return r, svc
}

func do(r *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestReplaceWeeklyRules(t *testing.T) {
	r, svc := setup(t)
	svc.On("ReplaceWeeklyRules", mock.Anything, mock.MatchedBy(func(req *model.ReplaceRulesRequest) bool {
		return len(req.Rules) == 1 && *req.Rules[0].Weekday == 0 && req.Rules[0].StartTime == "09:00"
	})).Return(&schedule.RuleSet{Version: 2}, nil)

	w := do(r, http.MethodPut, "/admin/schedule/rules",
		`{"rules":[{"weekday":0,"start_time":"09:00","end_time":"13:00"}]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":2`)
}

func TestReplaceWeeklyRulesValidation(t *testing.T) {
	r, svc := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad clock", `{"rules":[{"weekday":1,"start_time":"9am","end_time":"13:00"}]}`},
		{"missing weekday", `{"rules":[{"start_time":"09:00","end_time":"13:00"}]}`},
		{"weekday out of range", `{"rules":[{"weekday":9,"start_time":"09:00","end_time":"13:00"}]}`},
		{"malformed json", `{"rules":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPut, "/admin/schedule/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	svc.AssertNotCalled(t, "ReplaceWeeklyRules", mock.Anything, mock.Anything)
}

func TestBlackoutEndpoints(t *testing.T) {
	r, svc := setup(t)
	id := uuid.New()
	xmas := model.NewDate(2026, time.December, 25)

	svc.On("AddBlackoutDate", mock.Anything, &model.CreateBlackoutRequest{Date: "2026-12-25", Reason: "Christmas"}).
		Return(&model.BlackoutDate{ID: id, Date: xmas, Source: model.BlackoutSourceManual}, nil)
	svc.On("ListBlackoutDates", mock.Anything, model.NewDate(2026, time.December, 1), model.NewDate(2026, time.December, 31)).
		Return([]model.BlackoutDate{{ID: id, Date: xmas}}, nil)
	svc.On("DeleteBlackoutDate", mock.Anything, id).Return(nil)

	w := do(r, http.MethodPost, "/admin/schedule/blackouts", `{"date":"2026-12-25","reason":"Christmas"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"date":"2026-12-25"`)

	w = do(r, http.MethodGet, "/admin/schedule/blackouts?start=2026-12-01&end=2026-12-31", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/admin/schedule/blackouts/"+id.String(), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodPost, "/admin/schedule/blackouts", `{"date":"25/12/2026"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodDelete, "/admin/schedule/blackouts/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportHolidays(t *testing.T) {
	r, svc := setup(t)
	svc.On("ImportHolidays", mock.Anything, "", model.NewDate(2027, time.January, 1), model.NewDate(2027, time.December, 31)).
		Return(nil, apperrors.Unavailable("holiday calendar", context.DeadlineExceeded))

	w := do(r, http.MethodPost, "/admin/schedule/blackouts/import", `{"start":"2027-01-01","end":"2027-12-31"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

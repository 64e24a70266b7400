package schedule

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/schedule"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/httputil"
)

type Service interface {
	ListWeeklyRules(ctx context.Context) (*schedule.RuleSet, error)
	ReplaceWeeklyRules(ctx context.Context, req *model.ReplaceRulesRequest) (*schedule.RuleSet, error)
	ListBlackoutDates(ctx context.Context, start, end model.Date) ([]model.BlackoutDate, error)
	AddBlackoutDate(ctx context.Context, req *model.CreateBlackoutRequest) (*model.BlackoutDate, error)
	DeleteBlackoutDate(ctx context.Context, id uuid.UUID) error
	ImportHolidays(ctx context.Context, url string, start, end model.Date) (*schedule.ImportResult, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the admin schedule endpoints on an authenticated group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	s := r.Group("/schedule")
	{
		s.GET("/rules", h.ListWeeklyRules)
		s.PUT("/rules", h.ReplaceWeeklyRules)
		s.GET("/blackouts", h.ListBlackoutDates)
		s.POST("/blackouts", h.AddBlackoutDate)
		s.POST("/blackouts/import", h.ImportHolidays)
		s.DELETE("/blackouts/:id", h.DeleteBlackoutDate)
	}
}

func (h *Handler) ListWeeklyRules(c *gin.Context) {
	set, err := h.service.ListWeeklyRules(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, set)
}

func (h *Handler) ReplaceWeeklyRules(c *gin.Context) {
	var req model.ReplaceRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	set, err := h.service.ReplaceWeeklyRules(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, set)
}

func (h *Handler) ListBlackoutDates(c *gin.Context) {
	start, err := model.ParseDate(c.Query("start"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("start must be formatted as YYYY-MM-DD"))
		return
	}
	end, err := model.ParseDate(c.Query("end"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("end must be formatted as YYYY-MM-DD"))
		return
	}

	blackouts, err := h.service.ListBlackoutDates(c.Request.Context(), start, end)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, blackouts)
}

func (h *Handler) AddBlackoutDate(c *gin.Context) {
	var req model.CreateBlackoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}

	blackout, err := h.service.AddBlackoutDate(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, blackout)
}

func (h *Handler) DeleteBlackoutDate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid blackout ID", err))
		return
	}

	if err := h.service.DeleteBlackoutDate(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ImportHolidays(c *gin.Context) {
	var req model.ImportHolidaysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithBindError(c, err)
		return
	}
	start, err := model.ParseDate(req.Start)
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("start must be formatted as YYYY-MM-DD"))
		return
	}
	end, err := model.ParseDate(req.End)
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("end must be formatted as YYYY-MM-DD"))
		return
	}

	res, err := h.service.ImportHolidays(c.Request.Context(), req.URL, start, end)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

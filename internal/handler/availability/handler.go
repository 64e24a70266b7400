package availability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-booking/internal/model"
	"github.com/jwalitptl/clinic-booking/internal/service/availability"
	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
	"github.com/jwalitptl/clinic-booking/pkg/httputil"
)

var (
	errMissingDate = errors.New("date is required")
	errBadDate     = errors.New("expected YYYY-MM-DD or an RFC3339 timestamp")
)

// Service is the part of the availability service the handler uses.
type Service interface {
	GetAvailability(ctx context.Context, q availability.Query) (*availability.Result, error)
	Location() *time.Location
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/availability", h.GetAvailability)
}

type Response struct {
	ServiceID       uuid.UUID     `json:"service_id"`
	TimeZone        string        `json:"time_zone"`
	Reason          string        `json:"reason,omitempty"`
	ScheduleVersion int64         `json:"schedule_version"`
	Days            []DayResponse `json:"days"`
}

type DayResponse struct {
	Date     model.Date `json:"date"`
	Blackout bool       `json:"blackout"`
	Slots    []string   `json:"slots"`
}

func (h *Handler) GetAvailability(c *gin.Context) {
	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid service ID", err))
		return
	}

	loc := h.service.Location()
	start, err := ParseDateParam(c.Query("start"), loc)
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("start: "+err.Error()))
		return
	}
	end, err := ParseDateParam(c.Query("end"), loc)
	if err != nil {
		httputil.RespondWithError(c, apperrors.InvalidRange("end: "+err.Error()))
		return
	}

	res, err := h.service.GetAvailability(c.Request.Context(), availability.Query{
		ServiceID: serviceID,
		Start:     start,
		End:       end,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, NewResponse(res, loc))
}

// ParseDateParam accepts a calendar date (YYYY-MM-DD) or an RFC3339
// instant, which is reduced to its calendar date in loc.
func ParseDateParam(raw string, loc *time.Location) (model.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Date{}, errMissingDate
	}
	if d, err := model.ParseDate(raw); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return model.Date{}, errBadDate
	}
	return model.DateOf(t, loc), nil
}

// NewResponse renders slot starts as RFC3339 in the clinic zone.
func NewResponse(res *availability.Result, loc *time.Location) Response {
	resp := Response{
		ServiceID:       res.ServiceID,
		TimeZone:        res.TimeZone,
		Reason:          string(res.Reason),
		ScheduleVersion: res.ScheduleVersion,
		Days:            make([]DayResponse, 0, len(res.Days)),
	}
	for _, d := range res.Days {
		day := DayResponse{Date: d.Date, Blackout: d.Blackout, Slots: make([]string, 0, len(d.Slots))}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, s.Start.In(loc).Format(time.RFC3339))
		}
		resp.Days = append(resp.Days, day)
	}
	return resp
}

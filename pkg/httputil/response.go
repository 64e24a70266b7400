package httputil

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/clinic-booking/pkg/errors"
)

// RetryAfterSeconds is advertised on retryable failures.
const RetryAfterSeconds = 5

// Response wraps all API responses
type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Data    interface{}  `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: "success", Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: "error", Message: message}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// RespondWithError maps err onto a status code and aborts the chain.
func RespondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		resp := NewErrorResponse("request validation failed")
		for _, fe := range verrs {
			resp.Errors = append(resp.Errors, FieldError{Field: fe.Field(), Message: validationMessage(fe)})
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, resp)
		return
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
		return
	}

	if appErr.Retryable() {
		c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	message := appErr.Message
	if appErr.Code == apperrors.ErrInternal {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(appErr.StatusCode(), NewErrorResponse(message))
}

// RespondWithBindError reports a request body or query that could not be bound.
func RespondWithBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		RespondWithError(c, err)
		return
	}
	RespondWithError(c, apperrors.NewBadRequest("malformed request: "+err.Error(), err))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "email":
		return "invalid email format"
	case "clock":
		return "must be a time of day formatted as HH:MM"
	case "datetime":
		return "must be formatted as " + fe.Param()
	case "min":
		return "value is too small"
	case "max":
		return "value is too large"
	case "url":
		return "must be a valid URL"
	default:
		return "failed on the '" + fe.Tag() + "' rule"
	}
}

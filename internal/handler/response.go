package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/clock"
	"rental/internal/domain"
	"rental/internal/logger"
	"rental/internal/middleware"
	"rental/internal/repository"
	"rental/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).WithError(err).Error("request failed")
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, service.ErrAmountMismatch):
		return http.StatusUnprocessableEntity

	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrAlreadyInProgress),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// principal returns the authenticated caller. The auth middleware guarantees
// one is present on every /v1 route.
func principal(c *gin.Context) domain.Principal {
	p, _ := middleware.GetPrincipal(c)
	return p
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", service.ErrValidation, field)
	}
	t, err := clock.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", service.ErrValidation, field)
	}
	return t, nil
}

func parseRange(c *gin.Context) (time.Time, time.Time, error) {
	start, err := parseDate("start", c.Query("start"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("end", c.Query("end"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

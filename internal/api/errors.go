package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/good-yellow-bee/warroom/internal/incident"
	"github.com/good-yellow-bee/warroom/internal/models"
	"github.com/good-yellow-bee/warroom/internal/scheduler"
	"github.com/good-yellow-bee/warroom/internal/storage"
)

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnavailable      = "UNAVAILABLE"
)

// Standard errors
var (
	ErrNotFound = &Error{
		Code:    ErrCodeNotFound,
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}

	ErrInvalidBody = &Error{
		Code:    ErrCodeBadRequest,
		Message: "Invalid request body",
		Status:  http.StatusBadRequest,
	}

	ErrInternalServer = &Error{
		Code:    ErrCodeInternalError,
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}

	ErrAnalysisDisabled = &Error{
		Code:    ErrCodeUnavailable,
		Message: "Analysis is not configured",
		Status:  http.StatusServiceUnavailable,
	}

	ErrShuttingDown = &Error{
		Code:    ErrCodeUnavailable,
		Message: "Server is shutting down",
		Status:  http.StatusServiceUnavailable,
	}
)

// NewBadRequest creates a bad request error with custom message.
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    ErrCodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewValidationError creates a validation error with custom message.
func NewValidationError(message string) *Error {
	return &Error{
		Code:    ErrCodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error with custom message.
func NewNotFound(message string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: message,
		Status:  http.StatusNotFound,
	}
}

// fromServiceError maps a service error onto its API error. Errors with no
// mapping are logged and reported as internal.
func fromServiceError(logger *slog.Logger, op string, err error) *Error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return NewValidationError(err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFound(err.Error())
	case errors.Is(err, incident.ErrAnalysisDisabled):
		return ErrAnalysisDisabled
	case errors.Is(err, scheduler.ErrClosed):
		return ErrShuttingDown
	}
	logger.Error("request failed", "op", op, "error", err)
	return ErrInternalServer
}

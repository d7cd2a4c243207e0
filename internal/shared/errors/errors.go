package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error types. None of these are process-fatal; every operation in
// the workflow core recovers at request granularity.
var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAuthorization       = errors.New("permission denied")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrValidation          = errors.New("validation error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrSyncFailure         = errors.New("subscription delivery failure")
	ErrExternalService     = errors.New("external service error")
	ErrBadRequest          = errors.New("bad request")
	ErrInternal            = errors.New("internal error")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a not found error
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// Unauthorized creates an unauthenticated error
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Authorization creates a fail-closed permission error: the actor lacks the
// permission required for an action or screen.
func Authorization(permission string) *AppError {
	return &AppError{
		Err:        ErrAuthorization,
		Message:    fmt.Sprintf("missing required permission %q", permission),
		Code:       "AUTHORIZATION_ERROR",
		HTTPStatus: http.StatusForbidden,
		Details:    map[string]string{"permission": permission},
	}
}

// IllegalTransition creates an error naming the current and requested
// states, so the caller can re-query and re-offer legal options.
func IllegalTransition(current, requested string) *AppError {
	return &AppError{
		Err:        ErrIllegalTransition,
		Message:    fmt.Sprintf("cannot transition from %s to %s", current, requested),
		Code:       "ILLEGAL_TRANSITION",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"current": current, "requested": requested},
	}
}

// Validation creates a validation error with field details
func Validation(message string, details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// ConcurrencyConflict signals that the optimistic-append precondition
// failed because another actor updated the incident first. The caller must
// re-fetch and re-apply; neither update is dropped.
func ConcurrencyConflict(resource string, id string) *AppError {
	return &AppError{
		Err:        ErrConcurrencyConflict,
		Message:    fmt.Sprintf("%s was updated concurrently, re-fetch and retry", resource),
		Code:       "CONCURRENCY_CONFLICT",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

// SyncFailure wraps a subscription delivery failure. It is reported through
// the subscription's onError callback; the core never retries on its own.
func SyncFailure(err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrSyncFailure, err),
		Message:    "subscription delivery failed",
		Code:       "SYNC_ERROR",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// ExternalService wraps a collaborator failure (media store, identity
// provider, facilities directory). Optional metadata only; never corrupts
// the incident aggregate.
func ExternalService(service string, err error) *AppError {
	return &AppError{
		Err:        fmt.Errorf("%w: %w", ErrExternalService, err),
		Message:    fmt.Sprintf("%s unavailable", service),
		Code:       "EXTERNAL_SERVICE_ERROR",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]string{"service": service},
	}
}

// BadRequest creates a bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Message:    message,
		Code:       "BAD_REQUEST",
		HTTPStatus: http.StatusBadRequest,
	}
}

// Internal creates an internal error
func Internal(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "internal server error",
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) *AppError {
	if appErr, ok := err.(*AppError); ok {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "INTERNAL_ERROR",
		HTTPStatus: http.StatusInternalServerError,
	}
}

package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/nikhilbhutani/crmgateway/internal/store"
)

// Error is a failure with the status and message the caller receives.
type Error struct {
	Status  int
	Message string
	// Endpoints is set on unknown routes.
	Endpoints []string
}

func (e *Error) Error() string { return e.Message }

func Unauthenticated(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

func BadRequest(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func MethodNotAllowed(method string) *Error {
	return &Error{Status: http.StatusMethodNotAllowed, Message: "method " + method + " not allowed"}
}

func TooManyRequests() *Error {
	return &Error{Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
}

func Internal(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg}
}

// asError turns any handler error into the response the caller gets.
// Anything that is not already an *Error is logged and hidden.
func asError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		slog.Error("gateway request timed out", "error", err)
		return Internal("request timed out")
	}
	slog.Error("gateway request failed", "error", err)
	return Internal("internal server error")
}

// storeError maps a store failure for the named resource.
func storeError(err error, resource string) error {
	if errors.Is(err, store.ErrNotFound) {
		return NotFound(resource + " not found")
	}
	var rejected *store.RejectedError
	if errors.As(err, &rejected) {
		return BadRequest(rejected.Message)
	}
	return err
}

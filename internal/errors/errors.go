// Package errors provides the typed error vocabulary for the mailroom core.
//
// Every service (identity, access, packages, settings) returns one of the
// kinds below instead of an ad-hoc error; the HTTP layer is the single
// place that maps a kind to a status code (see middleware.go).
package errors

import (
	"fmt"
	"net/http"
)

// Kind is a stable, machine-readable error category.
type Kind string

const (
	Unauthenticated Kind = "UNAUTHENTICATED"
	Forbidden       Kind = "FORBIDDEN"
	Validation      Kind = "VALIDATION"
	Conflict        Kind = "CONFLICT"
	NotFound        Kind = "NOT_FOUND"
	RateLimited     Kind = "RATE_LIMITED"
	Locked          Kind = "LOCKED"
	Busy            Kind = "BUSY"
	Internal        Kind = "INTERNAL"
)

// AppError is the error type every service-layer function returns.
type AppError struct {
	Kind Kind

	// Reason is a stable, short machine code within the Kind (e.g.
	// "has_open_packages", "unknown_user"). Never shown to unauthorized
	// callers beyond the generic Kind where the spec requires it.
	Reason string

	// Message is safe to show to the caller.
	Message string

	// Details is internal-only context (wrapped error text); never
	// serialized to the HTTP response body.
	Details string
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s(%s): %s: %s", e.Kind, e.Reason, e.Message, e.Details)
	}
	return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Message)
}

func New(kind Kind, reason, message string) *AppError {
	return &AppError{Kind: kind, Reason: reason, Message: message}
}

func Wrap(kind Kind, reason, message string, err error) *AppError {
	ae := New(kind, reason, message)
	if err != nil {
		ae.Details = err.Error()
	}
	return ae
}

func NewUnauthenticated(message string) *AppError { return New(Unauthenticated, "", message) }

func NewForbidden(reason, message string) *AppError { return New(Forbidden, reason, message) }

func NewValidation(reason, message string) *AppError { return New(Validation, reason, message) }

func NewConflict(reason, message string) *AppError { return New(Conflict, reason, message) }

func NewNotFound(resource string) *AppError {
	return New(NotFound, "", fmt.Sprintf("%s not found", resource))
}

func NewRateLimited() *AppError {
	return New(RateLimited, "", "too many requests")
}

func NewLocked(message string) *AppError { return New(Locked, "account_locked", message) }

func NewBusy() *AppError {
	return New(Busy, "", "the server is under write pressure, try again shortly")
}

func NewInternal(err error) *AppError {
	return Wrap(Internal, "", "internal error", err)
}

// StatusCode maps a Kind to the HTTP status the RequestPipeline emits.
func StatusCode(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden, Locked:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	case Busy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Response is the JSON body shape for an error response.
type Response struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) ToResponse() Response {
	return Response{Error: string(e.Kind), Reason: e.Reason, Message: e.Message}
}

// As extracts an *AppError from err, falling back to a generic Internal
// error if err is not already one (keeps callers from needing a type
// switch at every call site).
func As(err error) *AppError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AppError); ok {
		return ae
	}
	return NewInternal(err)
}

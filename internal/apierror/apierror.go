// Package apierror defines the typed error taxonomy shared by every
// layer of the core: the same Kind maps to an HTTP status at the
// surface (C8) and to a terminal SSE "E" event inside a turn (C6).
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error the way §7 of the design does.
type Kind string

const (
	KindBadRequest   Kind = "bad-request"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not-found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate-limited"
	KindTransientNet Kind = "transient-net"
	KindToolDenied   Kind = "tool-denied"
	KindToolError    Kind = "tool-error"
	KindInternal     Kind = "internal"
)

// Error is a typed error carrying a Kind alongside a message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal when err
// carries no typed Kind.
func KindOf(err error) Kind {
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the HTTP status the surface (C8) returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransientNet, KindToolDenied, KindToolError, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Convenience constructors mirroring the §7 taxonomy.

func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal error", cause)
}

package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a request failed.
type ErrorKind string

const (
	KindConfig         ErrorKind = "config"          // missing credential or endpoint; no network call made
	KindValidation     ErrorKind = "validation"      // malformed message or prompt out of bounds
	KindTransport      ErrorKind = "transport"       // network attempted, no response received
	KindTimeout        ErrorKind = "timeout"         // no response within budget
	KindUpstreamStatus ErrorKind = "upstream_status" // non-2xx status from the backend
	KindUpstreamShape  ErrorKind = "upstream_shape"  // 2xx with a payload missing expected fields
	KindRateLimited    ErrorKind = "rate_limited"    // local request budget exhausted; no network call made
	KindCanceled       ErrorKind = "canceled"
)

// Error is the user-facing failure of a single request. Message is the exact
// string shown to the user.
type Error struct {
	Kind     ErrorKind
	Provider ProviderKind
	Status   int // HTTP status for KindUpstreamStatus, else 0
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error with a formatted message.
func NewError(kind ErrorKind, provider ProviderKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Provider: provider, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the error kind, mapping bare context errors to
// timeout/canceled and anything else to transport.
func KindOf(err error) ErrorKind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindTransport
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

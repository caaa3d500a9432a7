// Package apperr defines the typed error taxonomy every service operation
// fails with. Callers (the Router, the queue worker) dispatch on Kind
// instead of matching error strings.
package apperr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is one of the error categories from the failure taxonomy.
type Kind string

const (
	Validation         Kind = "validation_error"
	NotFound           Kind = "not_found"
	State              Kind = "state_error"
	InsufficientBal    Kind = "insufficient_balance"
	LedgerTransientErr Kind = "ledger_transient"
	LedgerFailureErr   Kind = "ledger_failure"
	RateLimited        Kind = "rate_limited"
	SecurityViolation  Kind = "security_violation"
	Internal           Kind = "internal"
)

// Error is the typed failure surfaced by every service operation.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the queue worker should reschedule this
// failure rather than move it straight to a terminal state.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case LedgerTransientErr, Internal:
		return true
	default:
		return false
	}
}

func new_(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validationf(format string, args ...any) *Error {
	return new_(Validation, fmt.Sprintf(format, args...), nil)
}

func NotFoundf(format string, args ...any) *Error {
	return new_(NotFound, fmt.Sprintf(format, args...), nil)
}

func Statef(format string, args ...any) *Error {
	return new_(State, fmt.Sprintf(format, args...), nil)
}

func InsufficientBalance(format string, args ...any) *Error {
	return new_(InsufficientBal, fmt.Sprintf(format, args...), nil)
}

func LedgerTransient(cause error) *Error {
	return new_(LedgerTransientErr, "ledger temporarily unavailable", cause)
}

func LedgerFailure(cause error) *Error {
	return new_(LedgerFailureErr, "ledger rejected the transaction", cause)
}

func RateLimit(retryAfterSeconds int) *Error {
	return new_(RateLimited, fmt.Sprintf("rate limit exceeded, retry after %ds", retryAfterSeconds), nil)
}

func Security(format string, args ...any) *Error {
	return new_(SecurityViolation, fmt.Sprintf(format, args...), nil)
}

func Wrap(cause error) *Error {
	var e *Error
	if errors.As(cause, &e) {
		return e
	}
	return new_(Internal, "unexpected error", cause)
}

// As is a small helper so callers can do `if ae, ok := apperr.As(err); ok`.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf returns the Kind of err, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// NewCorrelationID mints a support-lookup id for an Internal/LedgerFailure
// error surfaced to a user. Never derived from request content so it can't
// leak anything sensitive.
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelation attaches a correlation id, returning a copy.
func WithCorrelation(e *Error, id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

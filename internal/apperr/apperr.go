// Package apperr defines the typed error result used across every public
// operation in the dispatch core, per the error handling design in spec §7.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the eight error categories the spec recognizes.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindUnauthenticated     Kind = "UNAUTHENTICATED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindConflict            Kind = "CONFLICT"
	KindPreconditionFailed  Kind = "PRECONDITION_FAILED"
	KindInternal            Kind = "INTERNAL"
	KindUnavailable         Kind = "UNAVAILABLE"
)

// Error is the structured error surfaced at every boundary (HTTP handler,
// WebSocket dispatch, admin endpoint). Code is a short machine-readable
// token (e.g. "TRIP_LOCKED"); Message is human-readable; Data carries
// optional structured context for the client.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an *Error with no underlying cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an *Error that carries an underlying cause (for logging).
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithData attaches structured data to the error and returns it (fluent).
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// Internal wraps an unexpected failure (DB, key-value store, transient
// infra) as a generic INTERNAL error; the caller logs the real cause.
func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, "INTERNAL", message, cause)
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is an *Error, else KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Common, frequently reused sentinel-shaped constructors.

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Precondition(code, message string) *Error {
	return New(KindPreconditionFailed, code, message)
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

func Unavailable(code, message string) *Error {
	return New(KindUnavailable, code, message)
}

// Package errtypes defines the error taxonomy shared by all core layers.
//
// Every core operation returns either a value or an *Error carrying a stable
// code string, a short human-readable message, and optional structured
// details. The Kind groups codes into the categories the HTTP layer maps to
// status codes.
package errtypes

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy categories.
type Kind int

const (
	// KindInternal is the zero value: an unexpected failure propagated from
	// a collaborator (node store, metadata store) that is not retriable.
	KindInternal Kind = iota

	// KindValidation indicates bad input shape.
	KindValidation

	// KindNotFound indicates an absent target.
	KindNotFound

	// KindConflict indicates a concurrency or existence conflict.
	KindConflict

	// KindTypeMismatch indicates a node-kind mismatch during navigation.
	KindTypeMismatch

	// KindAuthorization indicates a failed authorization decision.
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTypeMismatch:
		return "type_mismatch"
	case KindAuthorization:
		return "authorization"
	default:
		return "internal"
	}
}

// Error is the structured error returned by core operations.
type Error struct {
	// Kind is the taxonomy category.
	Kind Kind

	// Code is a stable machine-readable code, e.g. "PATH_NOT_FOUND".
	Code string

	// Message is a short human-readable description.
	Message string

	// Details carries optional structured fields, e.g. the offending path
	// segment or the current/expected roots of a depot conflict.
	Details map[string]any

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns e with an additional structured detail field set.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause returns e with a wrapped cause attached.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// Validation creates a validation error.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// TypeMismatch creates a type-mismatch error.
func TypeMismatch(code, format string, args ...any) *Error {
	return &Error{Kind: KindTypeMismatch, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Authorization creates an authorization error.
func Authorization(code, format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected collaborator failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the stable code of err, or empty if err is not an *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf returns the taxonomy kind of err. Non-taxonomy errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsCode reports whether err carries the given stable code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

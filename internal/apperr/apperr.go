// Package apperr defines the error kinds named in the system's error
// handling design and maps them to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds the system distinguishes at its surfaces.
type Kind string

const (
	InputInvalid      Kind = "InputInvalid"
	NotFound          Kind = "NotFound"
	Conflict          Kind = "Conflict"
	Unavailable       Kind = "Unavailable"
	CodeUnresolved    Kind = "CodeUnresolved"
	AnnotationFailure Kind = "AnnotationFailure"
	JobFailure        Kind = "JobFailure"
	Cancelled         Kind = "Cancelled"
)

// Error wraps an underlying cause with a Kind so callers at the HTTP and job
// boundaries can react without string-matching messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a Kind-tagged error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap tags an existing error with a Kind.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to "" when err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a Kind to the status code named in spec.md §7.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InputInvalid, Conflict:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

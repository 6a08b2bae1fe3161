// Package domainerrors carries coded errors across service boundaries.
//
// Services return these so the transport layer can map a failure to a status
// code without string matching. Infrastructure should return
// pkg/platform/sentinel errors and let services translate them.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	// CodeTransitionConflict is returned when a moderation transition targets
	// a candidate that is no longer pending.
	CodeTransitionConflict Code = "transition_conflict"
	// CodeVerdictRequired is returned when an approval is attempted before a
	// verdict has been computed for the candidate.
	CodeVerdictRequired Code = "verdict_required"
	CodeRateLimited     Code = "rate_limit_exceeded"
	CodeUnavailable     Code = "upstream_unavailable"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
// Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As returns the outermost *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

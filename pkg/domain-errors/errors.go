// Package domainerrors provides code-classified errors for the registration
// core. Services return these so transport layers can map them to status
// codes without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and retry policy.
type Code string

const (
	// CodeBadRequest marks malformed or invalid command payloads.
	CodeBadRequest Code = "bad_request"
	// CodeNotFound marks lookups for records that do not exist.
	CodeNotFound Code = "not_found"
	// CodePreconditionFailed marks commands issued against a record that is
	// not in the required source status, including lost CAS races.
	CodePreconditionFailed Code = "precondition_failed"
	// CodeConflict marks uniqueness violations that survived internal retry.
	CodeConflict Code = "conflict"
	// CodeUnavailable marks external collaborator transport failures.
	// Always fail-closed: the caller may retry, no state was changed.
	CodeUnavailable Code = "service_unavailable"
	// CodeUnauthorized marks missing or invalid actor credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeInvariantViolation marks model-level invariant breaches.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeTimeout marks aborted operations whose context expired.
	CodeTimeout Code = "timeout"
	// CodeInternal marks unexpected failures with no caller remedy.
	CodeInternal Code = "internal"
)

// Error carries a code, a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// Is is a readability alias for HasCode used at handler call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// Coded reports whether err carries a Code anywhere in its chain.
func Coded(err error) bool {
	var coded *Error
	return errors.As(err, &coded)
}

// CodeOf returns the code carried by err, or CodeInternal when uncoded.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-safe message carried by err.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	return "internal error"
}

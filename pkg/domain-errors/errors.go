// Package domainerrors defines the coded error taxonomy returned by the
// domain services. Handlers translate codes into HTTP statuses; services
// attach codes at the point where an infrastructure fact (see
// pkg/platform/sentinel) becomes a domain outcome.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the category of a domain error.
type Code string

const (
	// CodeBadRequest covers malformed requests before domain validation runs
	// (unreadable body, unparsable id).
	CodeBadRequest Code = "bad_request"

	// CodeValidation covers well-formed requests that violate domain rules:
	// missing required reason/comment, a value that does not match the test
	// method's result type, limits with LSL > USL.
	CodeValidation Code = "validation_error"

	// CodeStateConflict is a transition attempted from a status that forbids
	// it: receiving a rejected sample, re-authorizing an authorized result,
	// updating a closed investigation.
	CodeStateConflict Code = "state_conflict"

	// CodeConflict is an optimistic-concurrency failure on a serialized
	// entity. Callers may retry with fresh state.
	CodeConflict Code = "concurrency_conflict"

	// CodeNotFound is an unknown id reference.
	CodeNotFound Code = "not_found"

	// CodeUnauthorized means the caller carries no verified identity.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden means the action requires a state or role precondition
	// the caller does not meet, e.g. authorizing a sample that is not
	// COMPLETED or reviewing one's own result.
	CodeForbidden Code = "forbidden"

	// CodeInvariantViolation marks a broken aggregate invariant detected at
	// runtime. These indicate bugs, not caller mistakes.
	CodeInvariantViolation Code = "invariant_violation"

	// CodeInternal is an unexpected infrastructure failure.
	CodeInternal Code = "internal_error"
)

// Error carries a code and a human-readable message, optionally wrapping a
// cause for errors.Is/As chains.
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

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability in handlers.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal for errors
// that never received one.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status used by all handlers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeStateConflict, CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

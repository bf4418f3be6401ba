// Package dErrors provides coded domain errors shared across features.
//
// Services return these so handlers can translate outcomes into HTTP status
// codes without string matching. Stores return pkg/platform/sentinel errors
// instead; services wrap those into coded errors at the feature boundary.
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport translation and callers.
type Code string

const (
	// CodeValidation marks missing or malformed required fields. Recoverable
	// by the caller; the message is safe to surface to the UI verbatim.
	CodeValidation Code = "validation"

	// CodeStateConflict marks a transition that is not legal from the entity's
	// current state, including concurrent-writer races. The error detail
	// carries the canonical current state so the caller can refresh.
	CodeStateConflict Code = "state_conflict"

	// CodeRequirementNotMet marks coverage below the resolved minimum at
	// review time.
	CodeRequirementNotMet Code = "requirement_not_met"

	// CodeUnauthorized marks a missing or invalid credential.
	CodeUnauthorized Code = "unauthorized"

	// CodeForbidden marks the wrong party attempting a signature or review.
	CodeForbidden Code = "forbidden"

	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. Detail carries machine-readable context
// (e.g. the canonical current state on a conflict).
type Error struct {
	Code    Code
	Message string
	Detail  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithDetail attaches a key/value pair to the error for transport.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]string, 1)
	}
	e.Detail[key] = value
	return e
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailOf extracts the detail map from err, or nil.
func DetailOf(err error) map[string]string {
	var de *Error
	if errors.As(err, &de) {
		return de.Detail
	}
	return nil
}

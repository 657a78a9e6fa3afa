// Package domainerrors provides coded errors that carry a machine-readable
// kind from services up to the transport layer. Stores return sentinel errors
// (pkg/platform/sentinel); services translate them into coded errors here so
// handlers can map a Code to an HTTP status without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers.
type Code string

const (
	// CodeBadRequest marks malformed or missing input the caller can fix.
	CodeBadRequest Code = "bad_request"
	// CodeConflict marks a uniqueness violation (name already registered).
	CodeConflict Code = "conflict"
	// CodeNotFound marks a lookup of an unknown entity.
	CodeNotFound Code = "not_found"
	// CodeInvalidState marks an operation invalid for the entity's current
	// lifecycle state.
	CodeInvalidState Code = "invalid_state"
	// CodeNoChallenge marks a verification attempt with no usable challenge.
	CodeNoChallenge Code = "no_valid_challenge"
	// CodeDNSValidation marks a failed proof of domain control. Possibly
	// transient: the caller may retry after fixing their DNS record.
	CodeDNSValidation Code = "dns_validation_failed"
	// CodeCA marks a signing infrastructure failure. Details stay internal.
	CodeCA Code = "ca_failure"
	// CodeInternal marks persistence or unexpected faults. Details stay
	// internal.
	CodeInternal Code = "internal_error"
	// CodeTimeout marks an operation abandoned due to deadline or
	// cancellation.
	CodeTimeout Code = "timeout"
)

// Error is a coded domain error, optionally wrapping a cause.
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

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil cause
// returns nil so call sites can wrap unconditionally.
func Wrap(cause error, code Code, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the code of the outermost coded error in the chain, or
// CodeInternal when the error carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the message of the outermost coded error, or an empty
// string for uncoded errors so transports never leak internals by accident.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

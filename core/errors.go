package core

import (
	"errors"
	"fmt"
)

// Code categorizes protocol-level failures for uniform downstream handling.
type Code string

const (
	// CodeNotFound indicates an unknown URI, tool or prompt name, or an
	// unrecognized URI scheme.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidArgument indicates a schema or required-argument failure.
	// The offending field is recorded in Error.Field.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeTimeout indicates the orchestration callback exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"

	// CodeCycleAborted indicates a lifecycle phase failed; the remaining
	// phases of that cycle were skipped.
	CodeCycleAborted Code = "CYCLE_ABORTED"
)

// Error is the shared protocol error carrying a machine-readable code plus
// enough context (operation, offending field) for callers to react without
// string matching. It wraps an underlying cause where one exists.
type Error struct {
	Code    Code   `json:"code"`
	Op      string `json:"op"`              // Operation that failed (tool, resource URI, prompt, phase)
	Field   string `json:"field,omitempty"` // Offending field for INVALID_ARGUMENT
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %q): %s", e.Code, e.Op, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Op, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NewNotFound constructs a NOT_FOUND error for an unknown URI, tool or prompt.
func NewNotFound(op, format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgument constructs an INVALID_ARGUMENT error naming the
// offending field.
func NewInvalidArgument(op, field, format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Op: op, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewTimeout constructs a TIMEOUT error for a deadline-exceeded external call.
func NewTimeout(op, format string, args ...any) *Error {
	return &Error{Code: CodeTimeout, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewCycleAborted wraps a phase failure. The phase name is recorded as the
// operation; the original error remains reachable via Unwrap.
func NewCycleAborted(phase Phase, err error) *Error {
	return &Error{Code: CodeCycleAborted, Op: string(phase), Message: err.Error(), Err: err}
}

func hasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsInvalidArgument reports whether err carries CodeInvalidArgument.
func IsInvalidArgument(err error) bool { return hasCode(err, CodeInvalidArgument) }

// IsTimeout reports whether err carries CodeTimeout.
func IsTimeout(err error) bool { return hasCode(err, CodeTimeout) }

// IsCycleAborted reports whether err carries CodeCycleAborted.
func IsCycleAborted(err error) bool { return hasCode(err, CodeCycleAborted) }

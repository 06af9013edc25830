// Package flowerr defines the error taxonomy shared by every core component.
package flowerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets from the error
// handling design: per-request errors map to a status code, background-task
// errors decide whether to retry.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindAuthenticationFailed
	KindResourceLimit
	KindTransientIO
	KindFatalIO
	KindCorruption
	KindSegmentClosed
	KindInvalidOffset
	KindShutdownInProgress
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindPermissionDenied:
		return "permission_denied"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindResourceLimit:
		return "resource_limit"
	case KindTransientIO:
		return "transient_io"
	case KindFatalIO:
		return "fatal_io"
	case KindCorruption:
		return "corruption"
	case KindSegmentClosed:
		return "segment_closed"
	case KindInvalidOffset:
		return "invalid_offset"
	case KindShutdownInProgress:
		return "shutdown_in_progress"
	default:
		return "unknown"
	}
}

// Error is the concrete error type every core component returns. Construct it
// with New or Wrap, never by hand, so Kind is always set.
type Error struct {
	Kind    Kind
	Op      string // component + operation, e.g. "partition.Append"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a Kind-tagged error with no underlying cause.
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf builds a Kind-tagged error with a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and operation to an existing error.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

// KindOf extracts the Kind from err, walking the Unwrap chain. Returns
// KindUnknown if err does not carry one.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Is reports whether KindOf(err) equals kind: only the outermost *Error on
// err's Unwrap chain is consulted, not Kinds of errors it wraps.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Package apperr defines the error kinds shared across services and
// transports. Errors are plain values tagged with a kind; HTTP handlers
// and bus consumers map kinds to status codes and ack decisions.
package apperr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// Unknown is an unclassified internal error.
	Unknown Kind = iota
	// Validation marks malformed or out-of-bounds input.
	Validation
	// Unauthorized marks missing or bad credentials.
	Unauthorized
	// NotFound marks a missing resource. Resources owned by another
	// user are reported as NotFound, never as a permission error.
	NotFound
	// Conflict marks a uniqueness violation or a write that lost a
	// concurrency race after retries.
	Conflict
	// Transient marks an upstream failure that may succeed on retry.
	Transient
	// Permanent marks an upstream rejection that will not succeed on retry.
	Permanent
	// Deadline marks a context deadline or cancellation.
	Deadline
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Deadline:
		return "deadline"
	default:
		return "unknown"
	}
}

// Error is an error value carrying a kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf creates a Validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorizedf creates an Unauthorized error.
func Unauthorizedf(format string, args ...any) *Error {
	return &Error{Kind: Unauthorized, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a NotFound error.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflictf creates a Conflict error.
func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...)}
}

// Transientf creates a Transient error.
func Transientf(format string, args ...any) *Error {
	return &Error{Kind: Transient, Message: fmt.Sprintf(format, args...)}
}

// Permanentf creates a Permanent error.
func Permanentf(format string, args ...any) *Error {
	return &Error{Kind: Permanent, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of err. Context cancellation and deadline
// errors map to Deadline, sql.ErrNoRows to NotFound, everything else
// untagged to Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Deadline
	}
	if errors.Is(err, sql.ErrNoRows) {
		return NotFound
	}
	return Unknown
}

// IsValidation reports whether err carries the Validation kind.
func IsValidation(err error) bool { return KindOf(err) == Validation }

// IsUnauthorized reports whether err carries the Unauthorized kind.
func IsUnauthorized(err error) bool { return KindOf(err) == Unauthorized }

// IsNotFound reports whether err carries the NotFound kind.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

// IsConflict reports whether err carries the Conflict kind.
func IsConflict(err error) bool { return KindOf(err) == Conflict }

// IsTransient reports whether err carries the Transient kind.
func IsTransient(err error) bool { return KindOf(err) == Transient }

// IsPermanent reports whether err carries the Permanent kind.
func IsPermanent(err error) bool { return KindOf(err) == Permanent }

// Package apperr defines the error kinds shared across Forgetful's core
// packages and the two boundaries (HTTP, meta-tool dispatch) that translate
// them into caller-visible responses.
//
// Business logic should never type-switch on a specific backend error; it
// wraps backend failures in one of these kinds and lets the boundary decide
// how to present it. The auto-linker is the one exception: it discards
// inner errors entirely rather than wrapping them (see internal/autolink).
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of an Error for boundary translation.
type Kind string

const (
	// Validation marks malformed input, schema violations, or out-of-range parameters.
	Validation Kind = "VALIDATION_ERROR"

	// NotFound marks a missing row, or a row not owned by the caller's user.
	NotFound Kind = "NOT_FOUND"

	// AlreadyLinked marks a link unique-constraint violation.
	AlreadyLinked Kind = "ALREADY_LINKED"

	// PermissionDenied marks a tool invocation outside the caller's effective scope.
	PermissionDenied Kind = "PERMISSION_DENIED"

	// Timeout marks a deadline exceeded while waiting on a repository or adapter call.
	Timeout Kind = "TIMEOUT"

	// Cancelled marks a caller-initiated cancellation.
	Cancelled Kind = "CANCELLED"

	// Internal marks adapter failures, dimension mismatches, or storage invariant violations.
	Internal Kind = "INTERNAL_ERROR"
)

// Error is the concrete error type carried through the core. It wraps an
// inner cause and tags it with a Kind so the HTTP and tool-dispatch
// boundaries can map it without re-deriving intent from error text.
type Error struct {
	Kind    Kind
	Message string
	// RequiredScope is set only for PermissionDenied errors, naming the
	// scope token (e.g. "write:memories") that would have permitted the call.
	RequiredScope string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an inner cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

// Validationf is a convenience constructor for the common Validation case.
func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

// Internalf is a convenience constructor for the common Internal case.
func Internalf(format string, args ...interface{}) *Error {
	return New(Internal, fmt.Sprintf(format, args...))
}

// PermissionDeniedf builds a PermissionDenied error naming the scope required.
func PermissionDeniedf(requiredScope, format string, args ...interface{}) *Error {
	return &Error{
		Kind:          PermissionDenied,
		Message:       fmt.Sprintf(format, args...),
		RequiredScope: requiredScope,
	}
}

// KindOf extracts the Kind from err, defaulting to Internal for errors that
// were never wrapped by this package (e.g. a bug that let a raw error
// escape a repository implementation).
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

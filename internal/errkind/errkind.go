// Package errkind provides the closed set of error kinds the orchestration
// core can surface, wrapped in a typed error so callers can errors.As into
// it instead of matching on strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the core distinguishes.
type Kind string

const (
	SessionNotFound  Kind = "SessionNotFound"
	AgentNotFound    Kind = "AgentNotFound"
	UnknownVendor    Kind = "UnknownVendor"
	InvalidCredential Kind = "InvalidCredential"
	CredentialMissing Kind = "CredentialMissing"
	ModelAdapterError Kind = "ModelAdapterError"
	ToolInvocationError Kind = "ToolInvocationError"
	Cancelled         Kind = "Cancelled"
	RefreshFailure    Kind = "RefreshFailure"
)

// Error is the error type every core-raised failure wraps itself in.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is, or wraps, a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind of err if it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Kind, true
}

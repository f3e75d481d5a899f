// Package apierr defines the error-kind taxonomy shared by every component
// of the router and carried verbatim onto the signaling wire.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a request failure. The signaling layer
// maps a Kind directly onto the wire error envelope's "kind" field.
type Kind string

const (
	Unauthorized     Kind = "Unauthorized"
	NotFound         Kind = "NotFound"
	BadRequest       Kind = "BadRequest"
	PermissionDenied Kind = "PermissionDenied"
	Conflict         Kind = "Conflict"
	UnsupportedCodec Kind = "UnsupportedCodec"
	Timeout          Kind = "Timeout"
	Internal         Kind = "Internal"
	Fatal            Kind = "Fatal"
)

// Error is a request-scoped failure tagged with a Kind. Message is always
// safe to expose to the client; Cause (if any) is logged server-side only.
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

// New creates an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags an existing error with a Kind, preserving it as Cause. A nil
// err returns nil so call sites can use it unconditionally.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else. Never leaks unexpected error detail.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return Internal
}

// SafeMessage returns a message safe to expose to the client: the tagged
// message for an *Error, or a generic string for anything else.
func SafeMessage(err error) string {
	if apiErr, ok := As(err); ok {
		return apiErr.Message
	}
	return "internal error"
}

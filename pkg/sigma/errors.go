package sigma

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can tell "credentials are bad"
// apart from "this one call failed".
type ErrorKind string

const (
	KindConfig          ErrorKind = "config"
	KindAuth            ErrorKind = "auth"
	KindUnknownTool     ErrorKind = "unknown_tool"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindUpstream        ErrorKind = "upstream"
)

// Error is the structured error returned everywhere in this module.
// Upstream errors additionally carry the HTTP status and response body.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Message   string    `json:"message"`
	Status    int       `json:"status,omitempty"`
	Body      string    `json:"body,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Kind == KindUpstream && e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewUpstreamError wraps a remote API failure with its status and body.
func NewUpstreamError(status int, body string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: fmt.Sprintf("upstream API returned %d", status),
		Status:  status,
		Body:    body,
	}
}

// Wrap converts a plain error into an Error of the given kind, keeping the
// original message as detail. Returns nil for a nil error.
func Wrap(err error, kind ErrorKind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message + ": " + err.Error()}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or KindUpstream for errors that did not
// originate in this module (they can only come from the network boundary).
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

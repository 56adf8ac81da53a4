// Package apperr defines the error taxonomy shared by the realtime hub and
// the HTTP handlers. Every failure that crosses a component boundary is an
// *Error carrying one of the codes below.
package apperr

import (
	"errors"
	"fmt"
)

// Codes classify failures by what the caller may do about them.
const (
	CodeUnauthenticated = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeInvalid         = 422
	CodeUpstream        = 502
)

// Error is a coded application error. Message is safe to send to a client;
// Err keeps the underlying cause for logs.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error with the given code and client-visible message.
func New(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

// WithMessage returns a copy of e with a more specific client-visible message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Code: e.Code, Message: message, Err: e.Err}
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// CodeOf returns the code of err, or CodeUpstream for unclassified errors.
func CodeOf(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUpstream
}

// MessageOf returns the client-visible message of err. Unclassified errors
// collapse to a generic message so internals never leak onto the wire.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// Predefined prototypes. Use WithMessage/Wrap to specialize.
var (
	ErrUnauthenticated = New(CodeUnauthenticated, "not authenticated")
	ErrForbidden       = New(CodeForbidden, "not allowed")
	ErrNotFound        = New(CodeNotFound, "not found")
	ErrInvalid         = New(CodeInvalid, "invalid payload")
	ErrUpstream        = New(CodeUpstream, "upstream failure")
)

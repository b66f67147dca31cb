package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a persistence error with an HTTP status code.
type Error struct {
	Code    int    // HTTP status code
	Message string // User-facing message
	Err     error  // Underlying error (optional)

	sentinel string // Message of the sentinel this error was derived from
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same message, so sentinels still
// match after WithCause or WithMessage copies.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.kind() == t.kind()
}

// HTTPCode returns the HTTP status code associated with this error.
func (e *Error) HTTPCode() int { return e.Code }

// WithMessage returns a copy with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg, Err: e.Err, sentinel: e.kind()}
}

// WithCause returns a copy wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err, sentinel: e.kind()}
}

func (e *Error) kind() string {
	if e.sentinel != "" {
		return e.sentinel
	}
	return e.Message
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    http.StatusNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    http.StatusConflict,
		Message: "resource already exists",
	}

	// ErrSlugTaken is returned when a post commit loses the race for its slug.
	ErrSlugTaken = &Error{
		Code:    http.StatusConflict,
		Message: "slug already taken",
	}

	// ErrRevisionConflict is returned when a conditional update finds the
	// row at a different revision than the one it was read at.
	ErrRevisionConflict = &Error{
		Code:    http.StatusConflict,
		Message: "revision conflict",
	}

	// ErrInvalidReference is returned when a foreign key points at nothing,
	// or a reply's parent belongs to another post.
	ErrInvalidReference = &Error{
		Code:    http.StatusBadRequest,
		Message: "invalid reference",
	}
)

// Package errors provides the coded domain errors surfaced by the Inkwell pipeline.
//
// Services return *Error values; callers match on the code:
//
//	post, err := posts.Publish(ctx, principal, input)
//	if errors.Is(err, errors.ErrAllocationExhausted) {
//	    // the title keeps colliding, ask the author to change it
//	}
//
// IndexDesync is soft: it never aborts an operation and is reported alongside
// a successful result instead of in place of one.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeValidation          Code = "VALIDATION"
	CodeAllocationExhausted Code = "ALLOCATION_EXHAUSTED"
	CodeStoreUnavailable    Code = "STORE_UNAVAILABLE"
	CodeIndexDesync         Code = "INDEX_DESYNC"
	CodeNotFound            Code = "NOT_FOUND"
	CodeAlreadyExists       Code = "ALREADY_EXISTS"
	CodeConflict            Code = "CONFLICT"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeInternal            Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeAllocationExhausted, CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrAllocationExhausted = &Error{Code: CodeAllocationExhausted, Message: "slug allocation exhausted"}
	ErrStoreUnavailable    = &Error{Code: CodeStoreUnavailable, Message: "store unavailable"}
	ErrIndexDesync         = &Error{Code: CodeIndexDesync, Message: "search index out of sync"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists       = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrUnauthorized        = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
)

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// AllocationExhausted reports that no unique slug could be committed for base.
func AllocationExhausted(base string, attempts int) *Error {
	return &Error{
		Code:    CodeAllocationExhausted,
		Message: fmt.Sprintf("could not allocate a unique slug for %q after %d attempts", base, attempts),
		Details: map[string]any{"base": base, "attempts": attempts},
	}
}

// StoreUnavailable wraps a store failure that aborted an operation.
func StoreUnavailable(err error, msg string) *Error {
	return &Error{Code: CodeStoreUnavailable, Message: msg, cause: err}
}

// IndexDesync wraps a failed index mutation for an entity that is already committed.
func IndexDesync(err error, kind string, id int64) *Error {
	return &Error{
		Code:    CodeIndexDesync,
		Message: fmt.Sprintf("%s %d committed but not indexed", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
		cause:   err,
	}
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// AlreadyExistsf creates an already exists error with formatted message.
func AlreadyExistsf(format string, args ...any) *Error {
	return &Error{Code: CodeAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates an error for a write that kept losing to concurrent writers.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Forbidden creates a forbidden error.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

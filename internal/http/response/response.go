// Package response writes JSON error bodies for plain net/http handlers that
// run outside huma, such as middleware rejecting a request early.
// The body shape matches the huma error responses: {code, message, details}.
package response

import (
	"encoding/json/v2"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// Problem is the JSON error body.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON writes v with the given status code using json/v2.
func JSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.MarshalWrite(w, v); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", "error", err)
	}
}

// Error writes a Problem with the given status and code.
func Error(w http.ResponseWriter, status int, code domainerrors.Code, message string, logger *slog.Logger) {
	JSON(w, status, Problem{Code: string(code), Message: message}, logger)
}

// BadRequest writes a 400 validation problem.
func BadRequest(w http.ResponseWriter, message string, logger *slog.Logger) {
	Error(w, http.StatusBadRequest, domainerrors.CodeValidation, message, logger)
}

// TooManyRequests writes a 429 with a Retry-After hint in seconds.
func TooManyRequests(w http.ResponseWriter, message, retryAfter string, logger *slog.Logger) {
	if retryAfter != "" {
		w.Header().Set("Retry-After", retryAfter)
	}
	JSON(w, http.StatusTooManyRequests, Problem{Code: "RATE_LIMITED", Message: message}, logger)
}

// HandleError maps a domain error to its status and body. Unknown errors
// are logged and become an opaque 500.
func HandleError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		JSON(w, domainErr.HTTPStatus(), Problem{
			Code:    string(domainErr.Code),
			Message: domainErr.Message,
			Details: domainErr.Details,
		}, logger)
		return
	}

	if logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	Error(w, http.StatusInternalServerError, domainerrors.CodeInternal, "internal server error", logger)
}

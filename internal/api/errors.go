package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/inkwellapp/inkwell-server/internal/errors"
)

// APIError is a custom error type that implements huma.StatusError.
// It maps domain errors to HTTP responses with consistent structure.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler() {
	huma.NewError = newAPIError
}

func newAPIError(status int, message string, errs ...error) huma.StatusError {
	for _, err := range errs {
		var domainErr *domainerrors.Error
		if errors.As(err, &domainErr) {
			return &APIError{
				status:  domainErr.HTTPStatus(),
				Code:    string(domainErr.Code),
				Message: domainErr.Message,
				Details: domainErr.Details,
			}
		}
	}

	// huma rejects malformed input (bad JSON, non-numeric path ids) with 422
	// before a handler runs. Report it like any other validation failure.
	if status == http.StatusUnprocessableEntity || status == http.StatusBadRequest {
		return &APIError{
			status:  http.StatusBadRequest,
			Code:    string(domainerrors.CodeValidation),
			Message: message,
			Details: inputDetails(errs),
		}
	}

	return &APIError{
		status:  status,
		Code:    statusToCode(status),
		Message: message,
	}
}

// inputDetails flattens huma's per-location errors into field -> message.
func inputDetails(errs []error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, err := range errs {
		var detail *huma.ErrorDetail
		if errors.As(err, &detail) {
			details[detail.Location] = detail.Message
			continue
		}
		details["request"] = err.Error()
	}
	return details
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(domainerrors.CodeValidation)
	case http.StatusUnauthorized:
		return string(domainerrors.CodeUnauthorized)
	case http.StatusForbidden:
		return string(domainerrors.CodeForbidden)
	case http.StatusNotFound:
		return string(domainerrors.CodeNotFound)
	case http.StatusConflict:
		return string(domainerrors.CodeAlreadyExists)
	case http.StatusServiceUnavailable:
		return string(domainerrors.CodeStoreUnavailable)
	default:
		return string(domainerrors.CodeInternal)
	}
}

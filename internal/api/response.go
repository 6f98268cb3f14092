package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/telemetry"
)

// SuccessResponse wraps successful API responses
type SuccessResponse struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error API response. Retryable is set when the
// request failed because an upstream provider was unavailable.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JSON writes a JSON response with the given status code
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Success writes a successful JSON response
func Success(w http.ResponseWriter, status int, data interface{}) {
	JSON(w, status, SuccessResponse{Data: data})
}

// Error writes an error JSON response
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// DomainErrorToHTTP maps domain errors to HTTP status codes. Wrapped domain
// errors are found through the error chain.
func DomainErrorToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch domain.CodeOf(err) {
	case domain.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case domain.ErrCodeNotFound:
		return http.StatusNotFound
	case domain.ErrCodeAlreadyExists:
		return http.StatusConflict
	case domain.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case domain.ErrCodeForbidden:
		return http.StatusForbidden
	case domain.ErrCodeEmbeddingUnavailable, domain.ErrCodeGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes an appropriate error response based on the error type.
// Errors that map to 500 are reported to Sentry and their details are not
// returned to the client.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := DomainErrorToHTTP(err)
	if status == http.StatusInternalServerError {
		telemetry.CaptureError(r.Context(), err)
	}

	JSON(w, status, ErrorResponse{
		Error:     errorMessage(err, status),
		Retryable: domain.IsRetryable(err),
	})
}

func errorMessage(err error, status int) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return "internal server error"
	}
	if status == http.StatusInternalServerError {
		return de.Message
	}
	if de.Code == domain.ErrCodeInvalidInput && de.Err != nil {
		return de.Message + ": " + de.Err.Error()
	}
	return de.Message
}

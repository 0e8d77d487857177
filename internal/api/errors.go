// Package api provides the HTTP surface of the recommendation service:
// routing, handlers and the standard error envelope.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/onnwee/jobrec/internal/middleware"
	"github.com/onnwee/jobrec/internal/recommend"
)

// Error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeMethodNotAllowed indicates the route exists for another method.
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeUnavailable indicates a required upstream service failed.
	ErrCodeUnavailable = "service_unavailable"

	// ErrCodeInconsistent indicates an upstream returned data for the wrong kind of entity.
	ErrCodeInconsistent = "service_inconsistent"

	// ErrCodeTimeout indicates the request ran out of time.
	ErrCodeTimeout = "timeout"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The code is stored on ctx and handed to the logging middleware, so every
// 4xx and 5xx log line carries it.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	ctx = middleware.SetErrorCode(ctx, code)
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, ctx context.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal response", "error", err)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write response", "error", err)
	}
}

// StatusForError maps a service error to an HTTP status and error code.
func StatusForError(err error) (int, string) {
	switch {
	case errors.Is(err, recommend.ErrInvalidLimit):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, recommend.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, recommend.ErrInconsistent):
		return http.StatusServiceUnavailable, ErrCodeInconsistent
	case errors.Is(err, recommend.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeServiceError writes the response for an error returned by a service.
// Upstream details stay in the logs and never reach the client.
func writeServiceError(w http.ResponseWriter, ctx context.Context, err error) {
	status, code := StatusForError(err)

	var message string
	switch code {
	case ErrCodeValidation:
		message = err.Error()
	case ErrCodeNotFound:
		message = "No job matches the request"
	case ErrCodeInconsistent:
		message = "An upstream service returned inconsistent data"
	case ErrCodeUnavailable:
		message = "A required upstream service is unavailable"
	case ErrCodeTimeout:
		message = "The request timed out"
	default:
		message = "Internal server error"
	}
	WriteError(w, ctx, status, code, message)
}

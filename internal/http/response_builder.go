// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used by every handler to write JSON
// responses and the mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"teambudget/internal/core"
	"teambudget/internal/log"
	"teambudget/internal/middleware/trace"
	"teambudget/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed encoding response body", log.FieldComponent, log.ComponentHTTP, log.FieldError, err)
	}
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(r *http.Request, statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: message, RequestID: trace.RequestID(r)})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(r *http.Request, message string) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(r *http.Request) *JSONResponseBuilder {
	return ErrorResponse(r, http.StatusInternalServerError, "internal error")
}

var validationErrors = []error{
	core.ErrInvalidDate,
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrEmptyCategory,
	core.ErrInvalidType,
	core.ErrInvalidFrequency,
	core.ErrInvalidSourceName,
	core.ErrNegativeLimit,
	core.ErrDescriptionTooLong,
	services.ErrInvalidEmail,
	errMalformedBody,
}

// statusFor maps a service error to an HTTP status and the error type used in logs.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	case errors.Is(err, services.ErrDuplicateCategory), errors.Is(err, core.ErrStaleRule):
		return http.StatusConflict, log.ErrorTypeConflict
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest, log.ErrorTypeValidation
		}
	}
	return http.StatusInternalServerError, log.ErrorTypeInternal
}

// ServiceError writes the response for a failed service call. Internal
// errors are logged and never echoed to the client.
func ServiceError(r *http.Request, op string, err error) *JSONResponseBuilder {
	status, errType := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed",
			err, log.ComponentHTTP, op, log.LogFields{"error_type": errType})
		return InternalServerError(r)
	case http.StatusNotFound:
		return NotFoundError(r, err.Error())
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
		log.FieldOperation, op,
		"error_type", errType,
		log.FieldError, err)
	return ErrorResponse(r, status, err.Error())
}

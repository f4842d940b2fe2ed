// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the mapping from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"payrecord/internal/core"
	"payrecord/internal/log"
	"payrecord/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	raw        []byte
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets a value to be encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	b.raw = nil
	return b
}

// Body sets a raw body with its content type.
func (b *ResponseBuilder) Body(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.raw = content
	b.payload = nil
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.raw != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.raw)
		return
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// UnauthorizedError creates the 401 response shared with the auth middleware.
func UnauthorizedError() *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, "Unauthorized")
}

// writeJSON is shorthand for a 200/201 JSON body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).JSON(v).Write(w)
}

// writeServiceError maps a service error to a response. Client errors carry
// their message; anything unexpected is logged and answered generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	status, msg := classifyError(err)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(),
			"Request failed", err, log.ComponentHTTP, operation,
			log.NewFields().WithRequestID(requestID(r)))
	}
	ErrorResponse(status, msg).Write(w)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, core.ErrWeakPassword):
		return http.StatusBadRequest, core.ErrWeakPassword.Error()
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, core.ErrInvalidDate):
		return http.StatusBadRequest, "Invalid date"
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, clientMessage(err, "Invalid input")
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, services.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge, "File too large"
	case errors.Is(err, services.ErrReconciliationFailed):
		return http.StatusInternalServerError, "Failed to clone bills"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// clientMessage returns the validation detail of an ErrInvalidInput chain:
// the first joined part that is not the sentinel, or the text following
// "invalid input: " in a wrapped message.
func clientMessage(err error, fallback string) string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, part := range joined.Unwrap() {
			if !errors.Is(part, core.ErrInvalidInput) {
				return part.Error()
			}
		}
	}
	prefix := core.ErrInvalidInput.Error() + ": "
	if _, detail, ok := strings.Cut(err.Error(), prefix); ok && detail != "" {
		return detail
	}
	return fallback
}

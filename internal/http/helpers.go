package http

import (
	"net/http"

	"payrecord/internal/auth"
	"payrecord/internal/middleware/trace"
)

// requestID returns the id assigned by the trace middleware.
func requestID(r *http.Request) string {
	return trace.RequestIDFromRequest(r)
}

// caller returns the authenticated user id, or "" outside RequireAuth.
func caller(r *http.Request) string {
	return auth.UserID(r.Context())
}

// origin is the client address recorded in activity logs.
func (s *Server) origin(r *http.Request) string {
	return s.clientIP(r)
}

// Package authn guards HTTP routes with bearer tokens.
package authn

import (
	"net/http"
	"strings"

	"payrecord/internal/auth"
	"payrecord/internal/log"
)

// TokenValidator is satisfied by *auth.JWTManager.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer"
// token and stores the caller's identity in the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				unauthorized(w)
				return
			}

			claims, err := validator.Validate(token)
			if err != nil {
				log.FromContext(r.Context()).DebugContext(r.Context(), "Rejected token", log.FieldError, err.Error())
				unauthorized(w)
				return
			}

			ctx := auth.WithClaims(r.Context(), claims)
			logger := log.FromContext(ctx).With(log.FieldUserID, claims.UserID)
			next.ServeHTTP(w, r.WithContext(log.NewContext(ctx, logger)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", auth.ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", auth.ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized"}` + "\n"))
}

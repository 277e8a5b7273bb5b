package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/model"
)

// unauthorizedBody is the uniform 401 payload. Missing, malformed,
// expired and revoked tokens are indistinguishable to the caller.
const unauthorizedBody = `{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing credentials"}}`

// TokenVerifier resolves a bearer token to an active user.
type TokenVerifier interface {
	VerifyRequest(ctx context.Context, token string) (*model.User, error)
}

// AuthConfig holds dependencies for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
}

// Auth returns a middleware that requires a valid bearer token and
// stores the resolved user in the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				cfg.Logger.Warn("missing bearer token",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
				)
				writeUnauthorized(w)
				return
			}

			user, err := cfg.Verifier.VerifyRequest(r.Context(), token)
			if err != nil {
				cfg.Logger.Warn("token rejected",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				writeUnauthorized(w)
				return
			}

			ctx := auth.ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(unauthorizedBody))
}

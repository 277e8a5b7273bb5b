package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/pulseboard/pulseboard/internal/cache"
)

// LoginRateLimiter checks the credential endpoint rate limit for an IP.
type LoginRateLimiter interface {
	CheckLoginRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter LoginRateLimiter

	LoginEnabled bool
	LoginRPS     int
	LoginBurst   int
}

// RateLimitLogin returns a middleware that limits register and login
// attempts per client IP. It protects password hashing capacity and
// slows down credential stuffing.
func RateLimitLogin(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.LoginEnabled || cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := cfg.Limiter.CheckLoginRateLimit(r.Context(), ip, cfg.LoginRPS, cfg.LoginBurst)
			if err != nil {
				// Fail open: limiter trouble should not block logins.
				cfg.Logger.Warn("login rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.Logger.Warn("login rate limited",
					"request_id", GetRequestID(r.Context()),
					"retry_after", result.RetryAfter,
				)
				writeRateLimitError(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the remote IP without the port. RealIP middleware
// has already folded proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeRateLimitError(w http.ResponseWriter, result *cache.RateLimitResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(result.RetryAfter.Seconds())))
	}
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"code":"RATE_LIMITED","message":"Too many requests"}}`))
}

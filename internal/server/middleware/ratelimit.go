package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/signalguard/internal/domain"
	"github.com/alanyoungcy/signalguard/internal/metrics"
)

// RateLimit allows each client IP at most limit requests per window under
// scope. A nil limiter or a non-positive limit turns it off. When redis is
// unreachable requests pass and a warning is logged.
func RateLimit(limiter domain.RateLimiter, scope string, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if limiter == nil || limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed, err := limiter.Allow(r.Context(), scope+":"+ip, limit, window)
			switch {
			case err != nil:
				logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
			case !allowed:
				metrics.RateLimited.WithLabelValues(scope).Inc()
				logger.InfoContext(r.Context(), "rate limited",
					slog.String("scope", scope),
					slog.String("client_ip", ip),
				)
				w.Header().Set("Retry-After", retryAfter)
				reject(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection's remote address.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

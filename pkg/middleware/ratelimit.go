package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/raulancona/gourmetclick/pkg/errors"
	"github.com/raulancona/gourmetclick/pkg/httputil"
	"github.com/raulancona/gourmetclick/pkg/ratelimit"
)

// RateLimit enforces a per-client-IP token bucket using limiter and answers
// 429 RATE_LIMITED when the bucket is empty. Mounted on the public menu and
// link-card routes.
func RateLimit(limiter *ratelimit.Keyed, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.TooManyRequests("too many requests"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller address, preferring the first valid entry of
// X-Forwarded-For, then X-Real-IP, then RemoteAddr without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip.String()
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

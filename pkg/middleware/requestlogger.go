package middleware

import (
	"log/slog"
	"net/http"

	"github.com/raulancona/gourmetclick/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// whatever identifiers earlier middleware attached (correlation, user, tenant,
// terminal, trace). Mount it after RequestLogging, Tracing, Terminal and Auth;
// handlers retrieve it with logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if userID := UserIDFromContext(ctx); userID != "" {
				ctx = logger.WithUserID(ctx, userID)
			}
			if tenantID := TenantIDFromContext(ctx); tenantID != "" {
				ctx = logger.WithTenantID(ctx, tenantID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

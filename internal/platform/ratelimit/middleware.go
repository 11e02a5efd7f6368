package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"caregate/internal/platform/middleware"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// Middleware rejects requests over limit within window with 429. Requests are
// keyed by the authenticated user, falling back to the remote address for
// unauthenticated ones, so it composes on either side of RequireAuth.
//
// A store failure fails open: rate limiting protects capacity, it is not an
// authorization control.
func Middleware(store Store, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := middleware.GetUserID(ctx)
			if key == "" {
				if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
					key = host
				} else {
					key = r.RemoteAddr
				}
			}

			result, err := store.Allow(ctx, key, limit, window)
			if err != nil {
				logger.ErrorContext(ctx, "rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := max(int(time.Until(result.ResetAt).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded, retry later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

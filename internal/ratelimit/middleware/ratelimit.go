package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"lifeline/internal/ratelimit/models"
	"lifeline/pkg/platform/httputil"
	metadata "lifeline/pkg/platform/middleware/metadata"
)

// RateLimiter is the admission check the middleware consults.
type RateLimiter interface {
	Check(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error)
}

// degradable is implemented by limiters that can fall back to a weaker store.
type degradable interface {
	Degraded() bool
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit gates a route by caller address. The identifier comes from the
// metadata middleware, which falls back to a shared "unknown" bucket.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)

			result, err := m.limiter.Check(ctx, ip, class)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit", "error", err, "endpoint_class", class)
				next.ServeHTTP(w, r)
				return
			}

			// Add headers regardless of outcome
			addRateLimitHeaders(w, result)
			if d, ok := m.limiter.(degradable); ok && d.Degraded() {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}

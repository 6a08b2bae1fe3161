package middleware

import (
	"log/slog"
	"time"

	"lifeline/internal/ratelimit/config"
	"lifeline/internal/ratelimit/service"
	"lifeline/internal/ratelimit/store/window"
)

// NewFallbackLimiter creates a limiter on process-local memory for use while
// the shared store is unavailable. Counters are per replica, so the effective
// budget is looser than the configured one until the primary recovers.
// Returns nil if cfg is nil, logging an error if a logger is provided.
func NewFallbackLimiter(cfg *config.Config, store *window.InMemoryStore, clock func() time.Time, logger *slog.Logger) RateLimiter {
	if cfg == nil || store == nil {
		if logger != nil {
			logger.Error("fallback limiter requires config and store")
		}
		return nil
	}
	opts := []service.Option{service.WithConfig(cfg), service.WithLogger(logger)}
	if clock != nil {
		opts = append(opts, service.WithClock(clock))
	}
	limiter, err := service.New(store, opts...)
	if err != nil {
		if logger != nil {
			logger.Error("failed to initialize fallback rate limiter", "error", err)
		}
		return nil
	}
	return limiter
}

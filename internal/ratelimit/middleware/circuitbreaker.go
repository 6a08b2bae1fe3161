package middleware

import (
	"context"
	"log/slog"

	"lifeline/internal/ratelimit/metrics"
	"lifeline/internal/ratelimit/models"
	"lifeline/pkg/platform/circuit"
)

// ResilientLimiter keeps admission control running when the primary window
// store (Redis) fails. Below the failure threshold a store error is returned
// and the middleware fails open. Once the breaker opens the in-memory
// fallback decides every request, while the primary is still probed so the
// breaker can close again.
type ResilientLimiter struct {
	primary  RateLimiter
	fallback RateLimiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewResilientLimiter(primary, fallback RateLimiter, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *ResilientLimiter {
	if breaker == nil {
		breaker = circuit.New("ratelimit-store")
	}
	return &ResilientLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

func (r *ResilientLimiter) Check(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error) {
	result, err := r.primary.Check(ctx, identifier, class)
	if err != nil {
		r.metrics.IncrementStoreErrors()
		useFallback, change := r.breaker.RecordFailure()
		if change.Opened {
			r.logger.WarnContext(ctx, "rate limit store circuit opened, using in-memory fallback",
				"breaker", r.breaker.Name(), "error", err)
			r.metrics.SetCircuitOpen(true)
		}
		if !useFallback {
			return nil, err
		}
		return r.checkFallback(ctx, identifier, class)
	}

	usePrimary, change := r.breaker.RecordSuccess()
	if change.Closed {
		r.logger.InfoContext(ctx, "rate limit store circuit closed", "breaker", r.breaker.Name())
		r.metrics.SetCircuitOpen(false)
	}
	if !usePrimary {
		return r.checkFallback(ctx, identifier, class)
	}
	return result, nil
}

// Degraded reports whether decisions are currently served by the fallback.
func (r *ResilientLimiter) Degraded() bool {
	return r.breaker.IsOpen()
}

func (r *ResilientLimiter) checkFallback(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error) {
	r.metrics.IncrementFallbackChecks()
	return r.fallback.Check(ctx, identifier, class)
}

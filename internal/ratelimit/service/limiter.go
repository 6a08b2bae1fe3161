// Package service implements the admission limiter and its background sweep.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"lifeline/internal/ratelimit/config"
	"lifeline/internal/ratelimit/metrics"
	"lifeline/internal/ratelimit/models"
	"lifeline/internal/ratelimit/observability"
	"lifeline/internal/ratelimit/ports"
	dErrors "lifeline/pkg/domain-errors"
	"lifeline/pkg/platform/audit"
)

// missingClassRetry is the back-off handed to callers of an unconfigured class.
const missingClassRetry = 60

// Limiter is the process-scoped admission guard. It is built once at startup
// and shared by every request handler.
type Limiter struct {
	store          ports.WindowStore
	config         *config.Config
	clock          func() time.Time
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher ports.AuditPublisher
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(l *Limiter) {
		l.config = cfg
	}
}

func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(l *Limiter) {
		l.auditPublisher = publisher
	}
}

func New(store ports.WindowStore, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("window store is required")
	}
	l := &Limiter{
		store:  store,
		config: config.DefaultConfig(),
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.config.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Check admits or denies one request from identifier against class.
// Unconfigured classes are denied.
func (l *Limiter) Check(ctx context.Context, identifier string, class models.EndpointClass) (*models.Result, error) {
	now := l.clock()

	limit, ok := l.config.Get(class)
	if !ok {
		observability.LogAudit(ctx, l.logger, nil, "rate_limit_config_missing",
			"identifier", identifier,
			"endpoint_class", class,
		)
		l.metrics.RecordDecision(class, false)
		return &models.Result{
			Allowed:    false,
			ResetAt:    now.Add(missingClassRetry * time.Second),
			RetryAfter: missingClassRetry,
		}, nil
	}

	key := models.NewKey(class, identifier)
	result, err := l.store.Allow(ctx, key.String(), limit, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check rate limit")
	}

	l.metrics.RecordDecision(class, result.Allowed)
	if !result.Allowed {
		result.RetryAfter = RetryAfterSeconds(result.ResetAt, now)
		observability.LogAudit(ctx, l.logger, l.auditPublisher, audit.EventRateLimitExceeded,
			"identifier", identifier,
			"endpoint_class", class,
			"decision", "denied",
			"limit", limit.MaxRequests,
			"window_seconds", int(limit.Window.Seconds()),
		)
	}
	return result, nil
}

// Reset clears one identifier's counter in class.
func (l *Limiter) Reset(ctx context.Context, identifier string, class models.EndpointClass, actorID string) error {
	if !class.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown endpoint class")
	}
	if identifier == "" {
		return dErrors.New(dErrors.CodeValidation, "identifier is required")
	}
	key := models.NewKey(class, identifier)
	if err := l.store.Reset(ctx, key.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to reset rate limit")
	}
	observability.LogAudit(ctx, l.logger, l.auditPublisher, audit.EventRateLimitReset,
		"identifier", identifier,
		"endpoint_class", class,
		"actor_id", actorID,
	)
	return nil
}

// RetryAfterSeconds is the whole number of seconds until resetAt, never
// less than one so a denied caller always backs off.
func RetryAfterSeconds(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

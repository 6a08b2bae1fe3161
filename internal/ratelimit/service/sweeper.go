package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lifeline/internal/ratelimit/metrics"
	"lifeline/internal/ratelimit/ports"
)

const DefaultSweepInterval = time.Minute

// Sweeper periodically evicts expired window entries so memory stays bounded
// by active callers rather than every caller ever seen.
type Sweeper struct {
	store    ports.WindowStore
	interval time.Duration
	clock    func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type SweeperOption func(*Sweeper)

func WithSweepClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.clock = clock
	}
}

func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func WithSweepMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func NewSweeper(store ports.WindowStore, interval time.Duration, opts ...SweeperOption) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &Sweeper{
		store:    store,
		interval: interval,
		clock:    time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on every tick until ctx is done. It returns nil on shutdown.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "rate limit sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "rate limit sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one reclamation pass and returns the number of evicted entries.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.clock())
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.ErrorContext(ctx, "rate limit sweep failed", "error", err)
	}
	s.metrics.AddSwept(removed)
	if removed > 0 {
		s.logger.DebugContext(ctx, "rate limit sweep finished", "evicted", removed)
	}
	return removed
}

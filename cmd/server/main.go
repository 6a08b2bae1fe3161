package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"lifeline/internal/directory/duplicate"
	directorymetrics "lifeline/internal/directory/metrics"
	"lifeline/internal/directory/moderation"
	"lifeline/internal/directory/ports"
	directorymemory "lifeline/internal/directory/store/memory"
	directorypostgres "lifeline/internal/directory/store/postgres"
	"lifeline/internal/directory/store/verdict"
	"lifeline/internal/directory/validation"
	"lifeline/internal/directory/verification"
	"lifeline/internal/platform/config"
	"lifeline/internal/platform/httpserver"
	"lifeline/internal/platform/logger"
	"lifeline/internal/platform/metrics"
	"lifeline/internal/platform/postgres"
	redisclient "lifeline/internal/platform/redis"
	ratelimitconfig "lifeline/internal/ratelimit/config"
	ratelimitmetrics "lifeline/internal/ratelimit/metrics"
	ratelimitmw "lifeline/internal/ratelimit/middleware"
	ratelimitservice "lifeline/internal/ratelimit/service"
	"lifeline/internal/ratelimit/store/window"
	"lifeline/pkg/platform/audit"
	auditpublisher "lifeline/pkg/platform/audit/publisher"
	kafkasink "lifeline/pkg/platform/audit/sink/kafka"
	auditmemory "lifeline/pkg/platform/audit/store/memory"
	auditpostgres "lifeline/pkg/platform/audit/store/postgres"
	"lifeline/pkg/platform/circuit"
)

// main wires configuration, stores and HTTP routes, then runs the server and
// background workers until a signal arrives.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// infra holds the process-wide backing services. Nil members mean the
// in-memory implementation is used for that concern.
type infra struct {
	db       *sql.DB
	redis    *redisclient.Client
	registry *metrics.Registry
	audit    *auditpublisher.Publisher
	closers  []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	inf, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer inf.close()

	rlMetrics := ratelimitmetrics.New(inf.registry)
	limits, err := buildLimiter(cfg, inf, rlMetrics, log)
	if err != nil {
		return err
	}

	moderationService, err := buildModeration(cfg, inf, log)
	if err != nil {
		return err
	}

	if cfg.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN not set; admin endpoints disabled")
	}
	router := newRouter(cfg, inf, limits, moderationService, log)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting lifeline", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	sweeper := ratelimitservice.NewSweeper(limits.sweep, cfg.RateLimit.SweepInterval,
		ratelimitservice.WithSweepLogger(log),
		ratelimitservice.WithSweepMetrics(rlMetrics),
	)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	inf := &infra{registry: metrics.New()}

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		inf.closers = append(inf.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			inf.close()
			return nil, err
		}
		inf.db = db
		auditStore = auditpostgres.New(db)
		log.Info("using postgres stores")
	} else {
		log.Warn("DATABASE_URL not set; directory state is in memory")
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		inf.close()
		return nil, err
	}
	if client != nil {
		inf.redis = client
		inf.closers = append(inf.closers, func() { _ = client.Close() })
		log.Info("using redis for rate limits and verdicts")
	}

	opts := []auditpublisher.Option{auditpublisher.WithLogger(log)}
	if cfg.AuditBufferSize > 0 {
		opts = append(opts, auditpublisher.WithAsyncBuffer(cfg.AuditBufferSize))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkasink.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			inf.close()
			return nil, err
		}
		inf.closers = append(inf.closers, producer.Close)
		opts = append(opts, auditpublisher.WithSink(kafkasink.New(producer, cfg.Kafka.AuditTopic)))
		log.Info("forwarding audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	}
	inf.audit = auditpublisher.NewPublisher(auditStore, opts...)
	// Registered after the sink client so queued events drain before it closes.
	inf.closers = append(inf.closers, inf.audit.Close)
	return inf, nil
}

// admission bundles the limiter the middleware consults, the limiter the
// reset endpoint targets, and the in-memory store the sweeper evicts from.
type admission struct {
	checker  ratelimitmw.RateLimiter
	resetter *ratelimitservice.Limiter
	sweep    *window.InMemoryStore
}

func buildLimiter(cfg config.Server, inf *infra, m *ratelimitmetrics.Metrics, log *slog.Logger) (*admission, error) {
	rlConfig, err := ratelimitconfig.Load(cfg.RateLimit.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts := []ratelimitservice.Option{
		ratelimitservice.WithConfig(rlConfig),
		ratelimitservice.WithLogger(log),
		ratelimitservice.WithMetrics(m),
		ratelimitservice.WithAuditPublisher(inf.audit),
	}

	if inf.redis == nil {
		store := window.New()
		limiter, err := ratelimitservice.New(store, opts...)
		if err != nil {
			return nil, err
		}
		return &admission{checker: limiter, resetter: limiter, sweep: store}, nil
	}

	limiter, err := ratelimitservice.New(window.NewRedisStore(inf.redis.Client), opts...)
	if err != nil {
		return nil, err
	}
	fallbackStore := window.New()
	fallback := ratelimitmw.NewFallbackLimiter(rlConfig, fallbackStore, nil, log)
	if fallback == nil {
		return nil, errors.New("rate limit fallback unavailable")
	}
	return &admission{
		checker:  ratelimitmw.NewResilientLimiter(limiter, fallback, circuit.New("ratelimit-redis"), log, m),
		resetter: limiter,
		sweep:    fallbackStore,
	}, nil
}

func buildModeration(cfg config.Server, inf *infra, log *slog.Logger) (*moderation.Service, error) {
	bounds, err := validation.NewBoundingBox(cfg.Directory.MinLat, cfg.Directory.MaxLat, cfg.Directory.MinLng, cfg.Directory.MaxLng)
	if err != nil {
		return nil, err
	}

	var (
		store    ports.Store
		tx       ports.Tx
		verdicts ports.VerdictStore
	)
	if inf.db != nil {
		store, tx = directorypostgres.New(inf.db), directorypostgres.NewTx(inf.db)
	} else {
		mem := directorymemory.New()
		store, tx = mem, directorymemory.NewTx(mem)
	}
	if inf.redis != nil {
		verdicts = verdict.NewRedisStore(inf.redis.Client, cfg.Directory.VerdictTTL)
	} else {
		verdicts = verdict.NewInMemoryStore(cfg.Directory.VerdictTTL)
	}

	scorer := verification.New(duplicate.New(store),
		verification.WithBounds(bounds),
		verification.WithLogger(log),
	)
	return moderation.New(store, tx, verdicts, scorer,
		moderation.WithLogger(log),
		moderation.WithAuditPublisher(inf.audit),
		moderation.WithMetrics(directorymetrics.New(inf.registry)),
	)
}

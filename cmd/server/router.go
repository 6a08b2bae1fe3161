package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	directoryhandler "lifeline/internal/directory/handler"
	jwttoken "lifeline/internal/jwt_token"
	"lifeline/internal/platform/config"
	ratelimithandler "lifeline/internal/ratelimit/handler"
	ratelimitmw "lifeline/internal/ratelimit/middleware"
	adminmw "lifeline/pkg/platform/middleware/admin"
	authmw "lifeline/pkg/platform/middleware/auth"
	"lifeline/pkg/platform/middleware/metadata"
	"lifeline/pkg/platform/middleware/requestlog"
	"lifeline/pkg/platform/middleware/requesttime"
)

const (
	tokenIssuer   = "lifeline"
	tokenAudience = "lifeline-api"
)

// newRouter wires every public, moderator and operator endpoint behind the
// shared middleware chain.
func newRouter(cfg config.Server, inf *infra, limits *admission, svc directoryhandler.Service, log *slog.Logger) http.Handler {
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience)
	authenticated := authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log)
	requireModerator := authmw.RequireRole(authmw.RoleModerator, log)
	rateLimiter := ratelimitmw.New(limits.checker, log, ratelimitmw.WithDisabled(cfg.RateLimit.Disabled))

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", adminmw.HeaderName},
		MaxAge:         300,
	}))
	r.Use(chimiddleware.RequestID)
	r.Use(requestlog.Middleware(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", health(inf))
	r.Method(http.MethodGet, "/metrics", inf.registry.Handler())

	directoryhandler.New(svc, inf.audit, log).Register(r, directoryhandler.Guards{
		Authenticated: authenticated,
		Moderator: func(next http.Handler) http.Handler {
			return authenticated(requireModerator(next))
		},
		RateLimit: rateLimiter.RateLimit,
	})

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.AdminAPIToken, log))
		ratelimithandler.New(limits.resetter, log).RegisterAdmin(r)
	})
	return r
}

func health(inf *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if inf.db != nil {
			if err := inf.db.PingContext(ctx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if inf.redis != nil {
			if err := inf.redis.Health(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

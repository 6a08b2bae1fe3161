package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/directory/models"
	jwttoken "lifeline/internal/jwt_token"
	"lifeline/internal/platform/config"
	ratelimitmetrics "lifeline/internal/ratelimit/metrics"
	authmw "lifeline/pkg/platform/middleware/auth"
	"lifeline/pkg/testutil"
)

const testAdminToken = "test-admin-token"

func testConfig() config.Server {
	return config.Server{
		Addr:               ":0",
		Environment:        config.EnvDevelopment,
		JWTSigningKey:      "router-test-key",
		AdminAPIToken:      testAdminToken,
		CORSAllowedOrigins: []string{"*"},
		RateLimit:          config.RateLimitConfig{SweepInterval: time.Minute},
		Directory: config.DirectoryConfig{
			MinLat: 4.5, MaxLat: 21.5, MinLng: 116, MaxLng: 127,
			VerdictTTL: time.Hour,
		},
	}
}

func newTestRouter(t *testing.T, cfg config.Server) http.Handler {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	inf, err := buildInfra(ctx, cfg, log)
	require.NoError(t, err)
	t.Cleanup(inf.close)

	limits, err := buildLimiter(cfg, inf, ratelimitmetrics.New(inf.registry), log)
	require.NoError(t, err)
	svc, err := buildModeration(cfg, inf, log)
	require.NoError(t, err)
	return newRouter(cfg, inf, limits, svc, log)
}

func bearer(t *testing.T, cfg config.Server, role string) string {
	t.Helper()
	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, tokenIssuer, tokenAudience).
		GenerateAccessToken(uuid.New(), role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

const submission = `{"name":"Bay Fire Station","category":"fire","phone":"02-8527-3653","address":"Roxas Boulevard, Pasay","latitude":14.5378,"longitude":120.9896}`

func TestRouter(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)
	userAuth := bearer(t, cfg, authmw.RoleUser)
	moderatorAuth := bearer(t, cfg, authmw.RoleModerator)

	testutil.Given(t, "a router on in-memory stores", func(t *testing.T) {
		testutil.When(t, "probing health", func(t *testing.T) {
			rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			testutil.Then(t, "it reports ok", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
			})
		})

		var candidate *models.Candidate
		testutil.When(t, "a signed-in user submits a service", func(t *testing.T) {
			req := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/services/submissions", submission)
			req.Header.Set("Authorization", userAuth)
			rec := testutil.DoRequest(router, req)

			testutil.Then(t, "the candidate is pending", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusCreated)
				candidate = testutil.UnmarshalResponse[models.Candidate](t, rec)
				assert.Equal(t, models.StatusPending, candidate.Status)
				assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))
			})
		})
		require.NotNil(t, candidate)

		testutil.When(t, "a plain user opens the moderation queue", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/moderation/pending", nil)
			req.Header.Set("Authorization", userAuth)
			rec := testutil.DoRequest(router, req)
			testutil.Then(t, "access is forbidden", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusForbidden)
			})
		})

		testutil.When(t, "a moderator verifies then approves", func(t *testing.T) {
			base := "/v1/moderation/candidates/" + candidate.ID.String()
			verify := httptest.NewRequest(http.MethodPost, base+"/verify", nil)
			verify.Header.Set("Authorization", moderatorAuth)
			testutil.AssertStatusOK(t, testutil.DoRequest(router, verify))

			approve := httptest.NewRequest(http.MethodPost, base+"/approve", nil)
			approve.Header.Set("Authorization", moderatorAuth)
			rec := testutil.DoRequest(router, approve)

			testutil.Then(t, "the entry is public", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
				dir := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/v1/directory", nil))
				testutil.AssertStatusOK(t, dir)
				listing := testutil.UnmarshalResponse[models.ListResponse[*models.DirectoryEntry]](t, dir)
				require.Equal(t, 1, listing.Count)
				assert.Equal(t, "Bay Fire Station", listing.Items[0].Name)
			})
		})

		testutil.When(t, "scraping metrics", func(t *testing.T) {
			rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			testutil.Then(t, "moderation counters are exported", func(t *testing.T) {
				testutil.AssertStatusOK(t, rec)
				body := rec.Body.String()
				assert.True(t, strings.Contains(body, "lifeline_candidates_submitted_total"))
				assert.True(t, strings.Contains(body, "lifeline_moderation_transitions_total"))
			})
		})
	})
}

func TestRouter_EmergencyAdmission(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg)

	submit := func() *httptest.ResponseRecorder {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/v1/services/submissions", submission)
		req.RemoteAddr = "203.0.113.7:5555"
		req.Header.Set("Origin", "https://relief.example.org")
		return testutil.DoRequest(router, req)
	}

	testutil.Given(t, "an anonymous caller hammering submissions", func(t *testing.T) {
		for range 10 {
			testutil.AssertStatus(t, submit(), http.StatusUnauthorized)
		}

		testutil.Then(t, "the eleventh attempt is throttled before auth", func(t *testing.T) {
			rec := submit()
			testutil.AssertStatusAndError(t, rec, http.StatusTooManyRequests, "rate_limit_exceeded")
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"),
				"browser clients must be able to read the throttled response")
		})

		testutil.When(t, "an operator resets the caller", func(t *testing.T) {
			body := `{"class":"emergency","identifier":"203.0.113.7"}`
			noToken := testutil.NewRequestWithBody(t, http.MethodPost, "/admin/rate-limit/reset", body)
			testutil.AssertStatus(t, testutil.DoRequest(router, noToken), http.StatusUnauthorized)

			req := testutil.NewRequestWithBody(t, http.MethodPost, "/admin/rate-limit/reset", body)
			req.Header.Set("X-Admin-Token", testAdminToken)
			testutil.AssertStatusOK(t, testutil.DoRequest(router, req))

			testutil.Then(t, "the caller is admitted again", func(t *testing.T) {
				testutil.AssertStatus(t, submit(), http.StatusUnauthorized)
			})
		})
	})
}

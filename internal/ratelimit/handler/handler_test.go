package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lifeline/internal/ratelimit/models"
	"lifeline/internal/ratelimit/service"
	"lifeline/internal/ratelimit/store/window"
	adminmw "lifeline/pkg/platform/middleware/admin"
)

const adminToken = "test-admin-token"

// HandlerSuite uses real components, not mocks: the handler is validated
// against the in-memory window store.
type HandlerSuite struct {
	suite.Suite
	router  http.Handler
	limiter *service.Limiter
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var err error
	s.limiter, err = service.New(window.New(), service.WithLogger(logger))
	s.Require().NoError(err)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(adminToken, logger))
		New(s.limiter, logger).RegisterAdmin(r)
	})
	s.router = r
}

func (s *HandlerSuite) post(body string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/rate-limit/reset", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestReset_RequiresAdminToken() {
	rec := s.post(`{"class":"emergency","identifier":"1.2.3.4"}`, "")
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.post(`{"class":"emergency","identifier":"1.2.3.4"}`, "wrong")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestReset_InvalidJSON() {
	rec := s.post("not valid json", adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReset_UnknownClass() {
	rec := s.post(`{"class":"bulk","identifier":"1.2.3.4"}`, adminToken)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestReset_ClearsCounter() {
	ctx := context.Background()
	for range 10 {
		_, err := s.limiter.Check(ctx, "1.2.3.4", models.ClassEmergency)
		s.Require().NoError(err)
	}
	denied, _ := s.limiter.Check(ctx, "1.2.3.4", models.ClassEmergency)
	s.Require().False(denied.Allowed)

	rec := s.post(`{"class":"emergency","identifier":" 1.2.3.4 "}`, adminToken)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp models.ResetResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(models.ClassEmergency, resp.Class)
	s.Equal("1.2.3.4", resp.Identifier)
	s.WithinDuration(time.Now(), resp.ResetAt, time.Minute)

	allowed, err := s.limiter.Check(ctx, "1.2.3.4", models.ClassEmergency)
	s.Require().NoError(err)
	s.True(allowed.Allowed)
}

func TestHandleReset_DirectCall(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter, err := service.New(window.New())
	require.NoError(t, err)
	h := New(limiter, logger)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"class":"auth","identifier":""}`))
	rec := httptest.NewRecorder()
	h.HandleReset(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

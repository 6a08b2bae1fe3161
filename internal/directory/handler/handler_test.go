package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"lifeline/internal/directory/duplicate"
	"lifeline/internal/directory/models"
	"lifeline/internal/directory/moderation"
	"lifeline/internal/directory/store/memory"
	"lifeline/internal/directory/store/verdict"
	"lifeline/internal/directory/verification"
	ratelimit "lifeline/internal/ratelimit/models"
	dErrors "lifeline/pkg/domain-errors"
	"lifeline/pkg/platform/audit"
	auditpublisher "lifeline/pkg/platform/audit/publisher"
	auditmemory "lifeline/pkg/platform/audit/store/memory"
	authmw "lifeline/pkg/platform/middleware/auth"
	"lifeline/pkg/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubValidator treats the bearer token as "<role>:<user id>".
type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*authmw.JWTClaims, error) {
	role, userID, ok := strings.Cut(token, ":")
	if !ok {
		return nil, errors.New("malformed token")
	}
	return &authmw.JWTClaims{UserID: userID, Role: role}, nil
}

type HandlerSuite struct {
	suite.Suite
	router    *chi.Mux
	store     *memory.Store
	audit     *auditmemory.InMemoryStore
	limited   []ratelimit.EndpointClass
	submitter string
	moderator string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.New()
	s.audit = auditmemory.NewInMemoryStore()
	s.limited = nil
	s.submitter = "user:" + uuid.NewString()
	s.moderator = "moderator:" + uuid.NewString()

	publisher := auditpublisher.NewPublisher(s.audit)
	scorer := verification.New(duplicate.New(s.store), verification.WithLogger(discard))
	svc, err := moderation.New(s.store, memory.NewTx(s.store), verdict.NewInMemoryStore(time.Hour), scorer,
		moderation.WithLogger(discard),
		moderation.WithAuditPublisher(publisher),
	)
	s.Require().NoError(err)

	authenticated := authmw.RequireAuth(stubValidator{}, discard)
	requireModerator := authmw.RequireRole(authmw.RoleModerator, discard)

	s.router = chi.NewRouter()
	New(svc, publisher, discard).Register(s.router, Guards{
		Authenticated: authenticated,
		Moderator: func(next http.Handler) http.Handler {
			return authenticated(requireModerator(next))
		},
		RateLimit: func(class ratelimit.EndpointClass) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					s.limited = append(s.limited, class)
					next.ServeHTTP(w, r)
				})
			}
		},
	})
}

func (s *HandlerSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.WithBearer(testutil.NewJSONRequest(s.T(), method, path, body), token)
	return testutil.DoRequest(s.router, req)
}

func cityHospital() map[string]any {
	return map[string]any{
		"name":      "City Hospital",
		"category":  "medical",
		"phone":     "09171234567",
		"address":   "Padre Faura Street, Ermita, Manila",
		"latitude":  14.5995,
		"longitude": 120.9842,
	}
}

func (s *HandlerSuite) submit(body map[string]any) *models.Candidate {
	rec := s.do(http.MethodPost, "/v1/services/submissions", s.submitter, body)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return testutil.UnmarshalResponse[models.Candidate](s.T(), rec)
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("authenticated submission is created pending", func() {
		c := s.submit(cityHospital())
		s.Equal(models.StatusPending, c.Status)
		s.Equal("City Hospital", c.Name)
		s.Contains(s.limited, ratelimit.ClassEmergency)
	})

	s.Run("anonymous submission is rejected", func() {
		rec := s.do(http.MethodPost, "/v1/services/submissions", "", cityHospital())
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("missing coordinates is a validation error", func() {
		body := cityHospital()
		delete(body, "latitude")
		rec := s.do(http.MethodPost, "/v1/services/submissions", s.submitter, body)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, string(dErrors.CodeValidation))
	})

	s.Run("unknown fields are rejected", func() {
		body := cityHospital()
		body["rating"] = 5
		rec := s.do(http.MethodPost, "/v1/services/submissions", s.submitter, body)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("malformed json is rejected", func() {
		rec := s.do(http.MethodPost, "/v1/services/submissions", s.submitter, "{not json")
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *HandlerSuite) TestModerationRequiresModeratorRole() {
	c := s.submit(cityHospital())

	rec := s.do(http.MethodGet, "/v1/moderation/pending", s.submitter, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/v1/moderation/candidates/"+c.ID.String()+"/approve", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestApproveFlow() {
	c := s.submit(cityHospital())
	base := "/v1/moderation/candidates/" + c.ID.String()

	s.Run("approve before verification needs a verdict", func() {
		rec := s.do(http.MethodPost, base+"/approve", s.moderator, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusPreconditionFailed, string(dErrors.CodeVerdictRequired))
	})

	s.Run("pending queue carries the verdict", func() {
		rec := s.do(http.MethodGet, "/v1/moderation/pending", s.moderator, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		resp := testutil.UnmarshalResponse[models.ListResponse[models.PendingReview]](s.T(), rec)
		s.Require().Equal(1, resp.Count)
		s.True(resp.Items[0].Verdict.Critical())
		s.Equal(models.NotesAllPassed, resp.Items[0].Verdict.Notes)
	})

	s.Run("approve publishes the entry", func() {
		rec := s.do(http.MethodPost, base+"/approve", s.moderator, nil)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		result := testutil.UnmarshalResponse[models.ApprovalResult](s.T(), rec)
		s.False(result.Overridden)
		s.Equal(models.StatusApproved, result.Candidate.Status)
		s.Equal(c.ID, result.Entry.CandidateID)
	})

	s.Run("directory lists the entry", func() {
		rec := s.do(http.MethodGet, "/v1/directory", "", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		resp := testutil.UnmarshalResponse[models.ListResponse[*models.DirectoryEntry]](s.T(), rec)
		s.Require().Equal(1, resp.Count)
		s.Equal("City Hospital", resp.Items[0].Name)
	})

	s.Run("second transition conflicts", func() {
		rec := s.do(http.MethodPost, base+"/reject", s.moderator, nil)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, string(dErrors.CodeTransitionConflict))
	})

	s.Run("audit trail records the approval", func() {
		rec := s.do(http.MethodGet, "/v1/moderation/audit?limit=10", s.moderator, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		resp := testutil.UnmarshalResponse[models.ListResponse[audit.Event]](s.T(), rec)
		actions := make([]string, 0, resp.Count)
		for _, e := range resp.Items {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, string(audit.EventCandidateApproved))
	})
}

func (s *HandlerSuite) TestVerify() {
	body := cityHospital()
	body["phone"] = "12345"
	c := s.submit(body)

	rec := s.do(http.MethodPost, "/v1/moderation/candidates/"+c.ID.String()+"/verify", s.moderator, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	v := testutil.UnmarshalResponse[models.Verdict](s.T(), rec)
	s.False(v.PhoneValid)
	s.Contains(v.Notes, "phone")
	s.Contains(s.limited, ratelimit.ClassStandard)
}

func (s *HandlerSuite) TestReject() {
	s.Run("explicit reason", func() {
		c := s.submit(cityHospital())
		rec := s.do(http.MethodPost, "/v1/moderation/candidates/"+c.ID.String()+"/reject", s.moderator,
			map[string]string{"reason": "Spam"})
		s.Require().Equal(http.StatusOK, rec.Code)
		got := testutil.UnmarshalResponse[models.Candidate](s.T(), rec)
		s.Equal(models.StatusRejected, got.Status)
		s.Equal("Spam", got.RejectionReason)
	})

	s.Run("empty body uses the default reason", func() {
		c := s.submit(cityHospital())
		rec := s.do(http.MethodPost, "/v1/moderation/candidates/"+c.ID.String()+"/reject", s.moderator, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		got := testutil.UnmarshalResponse[models.Candidate](s.T(), rec)
		s.Equal(models.DefaultRejectionReason, got.RejectionReason)
	})
}

func (s *HandlerSuite) TestCandidateIDValidation() {
	rec := s.do(http.MethodPost, "/v1/moderation/candidates/not-a-uuid/approve", s.moderator, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/v1/moderation/candidates/"+uuid.NewString()+"/approve", s.moderator, nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestAuditLimitValidation() {
	rec := s.do(http.MethodGet, "/v1/moderation/audit?limit=-1", s.moderator, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

type failingAudit struct{}

func (failingAudit) ListRecent(context.Context, int) ([]audit.Event, error) {
	return nil, errors.New("connection reset")
}

func TestHandleListAudit_StoreFailure(t *testing.T) {
	h := New(nil, failingAudit{}, discard)
	rec := httptest.NewRecorder()
	h.HandleListAudit(rec, httptest.NewRequest(http.MethodGet, "/v1/moderation/audit", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func passthrough(next http.Handler) http.Handler { return next }

// newDirectHandler builds a handler without auth middleware; tests place the
// caller identity on the request context themselves.
func newDirectHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	scorer := verification.New(duplicate.New(store), verification.WithLogger(discard))
	svc, err := moderation.New(store, memory.NewTx(store), verdict.NewInMemoryStore(time.Hour), scorer,
		moderation.WithLogger(discard))
	require.NoError(t, err)
	return New(svc, auditpublisher.NewPublisher(auditmemory.NewInMemoryStore()), discard), store
}

func TestHandleSubmit_UsesContextIdentityAndClock(t *testing.T) {
	h, _ := newDirectHandler(t)
	userID := uuid.NewString()
	pinned := time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/services/submissions", cityHospital())
	req = testutil.WithTime(testutil.WithAuth(req, userID, authmw.RoleUser), pinned)
	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, req)

	testutil.AssertStatus(t, rec, http.StatusCreated)
	testutil.AssertJSONContains(t, rec, "submittedBy", userID)
	testutil.AssertJSONContains(t, rec, "status", string(models.StatusPending))
	c := testutil.UnmarshalResponse[models.Candidate](t, rec)
	assert.True(t, pinned.Equal(c.SubmittedAt))
}

func TestHandleSubmit_MissingIdentity(t *testing.T) {
	h, _ := newDirectHandler(t)
	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/services/submissions", cityHospital())
	rec := httptest.NewRecorder()
	h.HandleSubmit(rec, testutil.WithUserID(req, "not-a-uuid"))
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
}

func TestHandleReject_RecordsContextModerator(t *testing.T) {
	h, store := newDirectHandler(t)
	r := chi.NewRouter()
	h.Register(r, Guards{
		Authenticated: passthrough,
		Moderator:     passthrough,
		RateLimit:     func(ratelimit.EndpointClass) Middleware { return passthrough },
	})

	req := testutil.NewJSONRequest(t, http.MethodPost, "/v1/services/submissions", cityHospital())
	rec := testutil.DoRequest(r, testutil.WithAuth(req, uuid.NewString(), authmw.RoleUser))
	testutil.AssertStatus(t, rec, http.StatusCreated)
	c := testutil.UnmarshalResponse[models.Candidate](t, rec)

	moderator := uuid.NewString()
	req = testutil.NewJSONRequest(t, http.MethodPost, "/v1/moderation/candidates/"+c.ID.String()+"/reject",
		map[string]string{"reason": "Closed permanently"})
	rec = testutil.DoRequest(r, testutil.WithModerator(req, moderator))
	testutil.AssertStatusOK(t, rec)
	testutil.AssertJSONContains(t, rec, "reviewedBy", moderator)
	testutil.AssertJSONContains(t, rec, "rejectionReason", "Closed permanently")

	stored, err := store.FindCandidate(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

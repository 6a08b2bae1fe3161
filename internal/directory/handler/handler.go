package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lifeline/internal/directory/models"
	ratelimit "lifeline/internal/ratelimit/models"
	id "lifeline/pkg/domain"
	dErrors "lifeline/pkg/domain-errors"
	"lifeline/pkg/platform/audit"
	"lifeline/pkg/platform/httputil"
	"lifeline/pkg/requestcontext"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Service defines the moderation operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, req models.SubmitRequest, submittedBy id.UserID) (*models.Candidate, error)
	ListDirectory(ctx context.Context) ([]*models.DirectoryEntry, error)
	ListPending(ctx context.Context) ([]models.PendingReview, error)
	Get(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	Verify(ctx context.Context, candidateID id.CandidateID) (*models.Verdict, error)
	Approve(ctx context.Context, candidateID id.CandidateID, moderatorID id.UserID) (*models.ApprovalResult, error)
	Reject(ctx context.Context, candidateID id.CandidateID, moderatorID id.UserID, reason string) (*models.Candidate, error)
}

type AuditReader interface {
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

type Middleware = func(http.Handler) http.Handler

// Guards are the route middlewares supplied by the caller: authentication,
// the moderator role check, and per-class admission.
type Guards struct {
	Authenticated Middleware
	Moderator     Middleware
	RateLimit     func(class ratelimit.EndpointClass) Middleware
}

// Handler wires directory and moderation endpoints to the service.
type Handler struct {
	service Service
	audit   AuditReader
	logger  *slog.Logger
}

func New(service Service, auditReader AuditReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: auditReader, logger: logger}
}

// Register mounts the endpoints with their guards.
func (h *Handler) Register(r chi.Router, g Guards) {
	r.With(g.RateLimit(ratelimit.ClassReadOnly)).Get("/v1/directory", h.HandleListDirectory)
	r.With(g.RateLimit(ratelimit.ClassEmergency), g.Authenticated).Post("/v1/services/submissions", h.HandleSubmit)

	r.Route("/v1/moderation", func(r chi.Router) {
		r.Use(g.Moderator)
		r.With(g.RateLimit(ratelimit.ClassReadOnly)).Get("/pending", h.HandleListPending)
		r.With(g.RateLimit(ratelimit.ClassReadOnly)).Get("/audit", h.HandleListAudit)
		r.With(g.RateLimit(ratelimit.ClassReadOnly)).Get("/candidates/{id}", h.HandleGetCandidate)
		r.Group(func(r chi.Router) {
			r.Use(g.RateLimit(ratelimit.ClassStandard))
			r.Post("/candidates/{id}/verify", h.HandleVerify)
			r.Post("/candidates/{id}/approve", h.HandleApprove)
			r.Post("/candidates/{id}/reject", h.HandleReject)
		})
	})
}

// HandleSubmit handles POST /v1/services/submissions.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req models.SubmitRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.Submit(ctx, req, userID)
	if err != nil {
		h.logFailure(ctx, "candidate submission failed", err, "user_id", userID.String())
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "candidate submitted",
		"request_id", requestcontext.RequestID(ctx),
		"candidate_id", c.ID.String(),
		"category", string(c.Category),
	)
	httputil.WriteJSON(w, http.StatusCreated, c)
}

// HandleListDirectory handles GET /v1/directory.
func (h *Handler) HandleListDirectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := h.service.ListDirectory(ctx)
	if err != nil {
		h.logFailure(ctx, "directory listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse[*models.DirectoryEntry]{
		Items:     entries,
		Count:     len(entries),
		FetchedAt: requestcontext.Now(ctx),
	})
}

// HandleListPending handles GET /v1/moderation/pending.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	reviews, err := h.service.ListPending(ctx)
	if err != nil {
		h.logFailure(ctx, "pending queue load failed", err)
		httputil.WriteError(w, err)
		return
	}
	h.logger.DebugContext(ctx, "pending queue loaded",
		"count", len(reviews),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse[models.PendingReview]{
		Items:     reviews,
		Count:     len(reviews),
		FetchedAt: requestcontext.Now(ctx),
	})
}

// HandleGetCandidate handles GET /v1/moderation/candidates/{id}.
func (h *Handler) HandleGetCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := h.candidateID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), candidateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleVerify handles POST /v1/moderation/candidates/{id}/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, ok := h.candidateID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Verify(ctx, candidateID)
	if err != nil {
		h.logFailure(ctx, "verification failed", err, "candidate_id", candidateID.String())
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

// HandleApprove handles POST /v1/moderation/candidates/{id}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, ok := h.candidateID(w, r)
	if !ok {
		return
	}
	moderatorID := requestcontext.UserID(ctx)

	result, err := h.service.Approve(ctx, candidateID, moderatorID)
	if err != nil {
		h.logFailure(ctx, "approval failed", err,
			"candidate_id", candidateID.String(),
			"moderator_id", moderatorID.String(),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "candidate approved",
		"request_id", requestcontext.RequestID(ctx),
		"candidate_id", candidateID.String(),
		"entry_id", result.Entry.ID.String(),
		"overridden", result.Overridden,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleReject handles POST /v1/moderation/candidates/{id}/reject. The body
// is optional; a missing reason gets the default.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	candidateID, ok := h.candidateID(w, r)
	if !ok {
		return
	}
	var req models.RejectRequest
	if err := httputil.DecodeJSON(r, &req, true); err != nil {
		httputil.WriteError(w, err)
		return
	}
	moderatorID := requestcontext.UserID(ctx)

	c, err := h.service.Reject(ctx, candidateID, moderatorID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "rejection failed", err,
			"candidate_id", candidateID.String(),
			"moderator_id", moderatorID.String(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleListAudit handles GET /v1/moderation/audit?limit=N.
func (h *Handler) HandleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := h.audit.ListRecent(ctx, limit)
	if err != nil {
		h.logFailure(ctx, "audit listing failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list audit events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.ListResponse[audit.Event]{
		Items:     events,
		Count:     len(events),
		FetchedAt: requestcontext.Now(ctx),
	})
}

func (h *Handler) candidateID(w http.ResponseWriter, r *http.Request) (id.CandidateID, bool) {
	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.CandidateID{}, false
	}
	return candidateID, true
}

// logFailure logs server-side failures at error level and caller errors at warn.
func (h *Handler) logFailure(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, args...)
		return
	}
	h.logger.WarnContext(ctx, msg, args...)
}

// Package handler exposes operator endpoints for the admission limiter.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"lifeline/internal/ratelimit/models"
	"lifeline/pkg/platform/httputil"
)

// adminActor is recorded as the actor of token-authenticated admin calls.
const adminActor = "admin-token"

type Resetter interface {
	Reset(ctx context.Context, identifier string, class models.EndpointClass, actorID string) error
}

type Handler struct {
	limiter Resetter
	logger  *slog.Logger
	clock   func() time.Time
}

func New(limiter Resetter, logger *slog.Logger) *Handler {
	return &Handler{limiter: limiter, logger: logger, clock: time.Now}
}

// RegisterAdmin mounts the admin routes. Callers wrap r with the admin token
// middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limit/reset", h.HandleReset)
}

// HandleReset clears one caller's counter, e.g. after a false positive
// throttled a hospital's shared NAT address.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ResetRequest
	if err := httputil.DecodeJSON(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	if err := h.limiter.Reset(ctx, req.Identifier, req.Class, adminActor); err != nil {
		h.logger.WarnContext(ctx, "rate limit reset failed", "error", err, "endpoint_class", req.Class)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ResetResponse{
		Class:      req.Class,
		Identifier: req.Identifier,
		ResetAt:    h.clock(),
	})
}

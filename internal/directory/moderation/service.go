// Package moderation drives candidates through pending -> approved|rejected
// and keeps the verdict a moderator reviews current.
package moderation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lifeline/internal/directory/metrics"
	"lifeline/internal/directory/models"
	"lifeline/internal/directory/ports"
	id "lifeline/pkg/domain"
	dErrors "lifeline/pkg/domain-errors"
	"lifeline/pkg/platform/audit"
	"lifeline/pkg/platform/sentinel"
	"lifeline/pkg/requestcontext"
)

const tracerName = "lifeline/internal/directory/moderation"

// defaultVerifyConcurrency bounds parallel verdict computation when the
// pending queue is loaded.
const defaultVerifyConcurrency = 4

const (
	outcomeApproved             = "approved"
	outcomeApprovedWithOverride = "approved_with_override"
	outcomeRejected             = "rejected"
	outcomeConflict             = "conflict"
)

// Service orchestrates submission, verification and moderation transitions.
type Service struct {
	store          ports.Store
	tx             ports.Tx
	verdicts       ports.VerdictStore
	verifier       ports.Verifier
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	concurrency    int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithVerifyConcurrency sets how many verdicts ListPending computes at once.
func WithVerifyConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func New(store ports.Store, tx ports.Tx, verdicts ports.VerdictStore, verifier ports.Verifier, opts ...Option) (*Service, error) {
	if store == nil || tx == nil || verdicts == nil || verifier == nil {
		return nil, errors.New("moderation: store, tx, verdict store and verifier are required")
	}
	s := &Service{
		store:       store,
		tx:          tx,
		verdicts:    verdicts,
		verifier:    verifier,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		concurrency: defaultVerifyConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit validates a submission and stores it as a pending candidate.
func (s *Service) Submit(ctx context.Context, req models.SubmitRequest, submittedBy id.UserID) (*models.Candidate, error) {
	if submittedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authenticated submitter required")
	}
	c, err := models.NewCandidate(id.NewCandidateID(), req, submittedBy, requestcontext.Now(ctx))
	if err != nil {
		// Convert invariant violations to validation errors for API response
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeInvariantViolation {
			return nil, dErrors.New(dErrors.CodeValidation, de.Message)
		}
		return nil, err
	}
	if err := s.store.CreateCandidate(ctx, c); err != nil {
		return nil, translateStoreErr(err, "failed to store candidate")
	}

	s.metrics.IncrementSubmitted()
	s.logAudit(ctx, audit.EventCandidateSubmitted,
		"candidate_id", c.ID.String(),
		"actor_id", submittedBy.String(),
		"category", string(c.Category),
	)
	return c, nil
}

// Get returns one candidate regardless of status.
func (s *Service) Get(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	c, err := s.store.FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load candidate")
	}
	return c, nil
}

// ListDirectory returns the approved directory.
func (s *Service) ListDirectory(ctx context.Context) ([]*models.DirectoryEntry, error) {
	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list directory")
	}
	return entries, nil
}

// ListPending returns pending candidates with their current verdicts,
// computing and caching a verdict for any candidate that has none.
func (s *Service) ListPending(ctx context.Context) ([]models.PendingReview, error) {
	candidates, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, translateStoreErr(err, "failed to list pending candidates")
	}

	reviews := make([]models.PendingReview, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, c := range candidates {
		reviews[i].Candidate = c
		g.Go(func() error {
			v, err := s.currentVerdict(gctx, c)
			if err != nil {
				return err
			}
			reviews[i].Verdict = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reviews, nil
}

// Verify recomputes the verdict for a pending candidate and makes it current.
func (s *Service) Verify(ctx context.Context, candidateID id.CandidateID) (*models.Verdict, error) {
	c, err := s.store.FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, translateStoreErr(err, "failed to load candidate")
	}
	if err := c.CanTransition(); err != nil {
		return nil, err
	}
	v, err := s.computeVerdict(ctx, c)
	if err != nil {
		return nil, err
	}

	decision := "passed"
	if !v.Critical() {
		decision = "failed"
	}
	s.logAudit(ctx, audit.EventCandidateVerified,
		"candidate_id", c.ID.String(),
		"actor_id", requestcontext.UserID(ctx).String(),
		"decision", decision,
		"reason", v.Notes,
	)
	return v, nil
}

// Approve copies a pending candidate into the directory. It requires a
// current verdict; failing critical checks do not block approval but are
// recorded on the candidate as override warnings.
func (s *Service) Approve(ctx context.Context, candidateID id.CandidateID, moderatorID id.UserID) (*models.ApprovalResult, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.Approve",
		trace.WithAttributes(attribute.String("candidate_id", candidateID.String())))
	defer span.End()

	if moderatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "moderator identity required")
	}

	current, err := s.store.FindCandidate(ctx, candidateID)
	if err != nil {
		return nil, s.spanErr(span, translateStoreErr(err, "failed to load candidate"))
	}
	if err := current.CanTransition(); err != nil {
		s.metrics.RecordTransition(outcomeConflict)
		return nil, s.spanErr(span, err)
	}

	cached, err := s.verdicts.Get(ctx, candidateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.spanErr(span, dErrors.New(dErrors.CodeVerdictRequired, "verify the candidate before approving"))
		}
		return nil, s.spanErr(span, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load verdict"))
	}
	verdict := s.recheck(ctx, current, cached)
	warnings := verdict.CriticalFailures()
	now := requestcontext.Now(ctx)

	var result models.ApprovalResult
	err = s.tx.RunInTx(ctx, candidateID, func(store ports.TxStore) error {
		c, err := store.FindCandidateForUpdate(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := c.CanTransition(); err != nil {
			return err
		}
		entry := models.NewDirectoryEntry(id.NewEntryID(), c, moderatorID, now)
		if err := store.InsertEntry(ctx, entry); err != nil {
			return err
		}
		c.ApplyApproval(moderatorID, entry.ID, warnings, now)
		if err := store.UpdateCandidateReview(ctx, c); err != nil {
			return err
		}
		result = models.ApprovalResult{Candidate: c, Entry: entry, Overridden: len(warnings) > 0, Warnings: warnings}
		return nil
	})
	if err != nil {
		err = s.transitionErr(err, "failed to approve candidate")
		return nil, s.spanErr(span, err)
	}

	s.dropVerdict(ctx, candidateID)

	event, outcome := audit.EventCandidateApproved, outcomeApproved
	if result.Overridden {
		event, outcome = audit.EventCandidateApprovedWithOverride, outcomeApprovedWithOverride
	}
	s.metrics.RecordTransition(outcome)
	span.SetAttributes(attribute.Bool("overridden", result.Overridden))
	s.logAudit(ctx, event,
		"candidate_id", candidateID.String(),
		"actor_id", moderatorID.String(),
		"decision", outcome,
		"reason", strings.Join(warnings, ","),
		"entry_id", result.Entry.ID.String(),
	)
	return &result, nil
}

// Reject closes a pending candidate without touching the directory.
func (s *Service) Reject(ctx context.Context, candidateID id.CandidateID, moderatorID id.UserID, reason string) (*models.Candidate, error) {
	ctx, span := s.tracer.Start(ctx, "moderation.Reject",
		trace.WithAttributes(attribute.String("candidate_id", candidateID.String())))
	defer span.End()

	if moderatorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "moderator identity required")
	}
	now := requestcontext.Now(ctx)

	var rejected *models.Candidate
	err := s.tx.RunInTx(ctx, candidateID, func(store ports.TxStore) error {
		c, err := store.FindCandidateForUpdate(ctx, candidateID)
		if err != nil {
			return err
		}
		if err := c.CanTransition(); err != nil {
			return err
		}
		c.ApplyRejection(moderatorID, reason, now)
		if err := store.UpdateCandidateReview(ctx, c); err != nil {
			return err
		}
		rejected = c
		return nil
	})
	if err != nil {
		return nil, s.spanErr(span, s.transitionErr(err, "failed to reject candidate"))
	}

	s.dropVerdict(ctx, candidateID)
	s.metrics.RecordTransition(outcomeRejected)
	s.logAudit(ctx, audit.EventCandidateRejected,
		"candidate_id", candidateID.String(),
		"actor_id", moderatorID.String(),
		"decision", outcomeRejected,
		"reason", rejected.RejectionReason,
	)
	return rejected, nil
}

func (s *Service) currentVerdict(ctx context.Context, c *models.Candidate) (*models.Verdict, error) {
	v, err := s.verdicts.Get(ctx, c.ID)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		// A cache outage should not hide the queue; recompute instead.
		s.logger.WarnContext(ctx, "verdict cache read failed", "candidate_id", c.ID.String(), "error", err)
	}
	return s.computeVerdict(ctx, c)
}

func (s *Service) computeVerdict(ctx context.Context, c *models.Candidate) (*models.Verdict, error) {
	start := time.Now()
	v := s.verifier.Verify(ctx, c)
	s.metrics.ObserveVerification(v, start)
	if err := s.verdicts.Put(ctx, &v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store verdict")
	}
	return &v, nil
}

// recheck re-runs verification against the directory as it is now. The
// cached verdict may predate approvals of other candidates, so override
// warnings are taken from the fresh result. A changed verdict replaces the
// cached one.
func (s *Service) recheck(ctx context.Context, c *models.Candidate, cached *models.Verdict) models.Verdict {
	start := time.Now()
	fresh := s.verifier.Verify(ctx, c)
	s.metrics.ObserveVerification(fresh, start)
	if fresh.SameChecks(*cached) {
		return fresh
	}
	s.logger.InfoContext(ctx, "verdict changed since last verification",
		"candidate_id", c.ID.String(),
		"cached_notes", cached.Notes,
		"notes", fresh.Notes,
	)
	if err := s.verdicts.Put(ctx, &fresh); err != nil {
		s.logger.WarnContext(ctx, "failed to refresh verdict", "candidate_id", c.ID.String(), "error", err)
	}
	return fresh
}

// dropVerdict clears the verdict of a candidate that is no longer pending.
// The transition already committed, so a failure is only logged.
func (s *Service) dropVerdict(ctx context.Context, candidateID id.CandidateID) {
	if err := s.verdicts.Delete(ctx, candidateID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear verdict", "candidate_id", candidateID.String(), "error", err)
	}
}

// transitionErr reports any lost race on the candidate as a transition
// conflict and translates other store failures.
func (s *Service) transitionErr(err error, msg string) error {
	if dErrors.HasCode(err, dErrors.CodeTransitionConflict) {
		s.metrics.RecordTransition(outcomeConflict)
		return err
	}
	if errors.Is(err, sentinel.ErrInvalidState) || errors.Is(err, sentinel.ErrConflict) {
		s.metrics.RecordTransition(outcomeConflict)
		return dErrors.New(dErrors.CodeTransitionConflict, "candidate is no longer pending")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return translateStoreErr(err, msg)
}

func (s *Service) spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

func translateStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "candidate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

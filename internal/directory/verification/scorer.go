// Package verification composes the field checks and the duplicate search
// into a single verdict for a candidate.
package verification

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lifeline/internal/directory/duplicate"
	"lifeline/internal/directory/models"
	"lifeline/internal/directory/validation"
	"lifeline/pkg/requestcontext"
)

const tracerName = "lifeline/internal/directory/verification"

type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, name, phone string, lat, lng float64) (duplicate.Match, error)
}

// Scorer produces verdicts. It holds no per-call state, so concurrent calls
// never share a verdict.
type Scorer struct {
	bounds     validation.BoundingBox
	duplicates DuplicateFinder
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Scorer)

func WithBounds(b validation.BoundingBox) Option {
	return func(s *Scorer) {
		s.bounds = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) {
		s.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scorer) {
		s.tracer = tracer
	}
}

func New(duplicates DuplicateFinder, opts ...Option) *Scorer {
	s := &Scorer{
		bounds:     validation.PhilippinesBounds,
		duplicates: duplicates,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify always returns a verdict. Field failures become false checks, a
// directory outage fails the duplicate check, and a panic inside scoring
// fails every check.
func (s *Scorer) Verify(ctx context.Context, c *models.Candidate) (verdict models.Verdict) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify")
	defer span.End()

	now := requestcontext.Now(ctx)
	if c == nil {
		span.SetStatus(codes.Error, "nil candidate")
		return models.FailedVerdict(verdict.CandidateID, now)
	}
	span.SetAttributes(attribute.String("candidate_id", c.ID.String()))

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "verification panicked",
				"candidate_id", c.ID.String(),
				"panic", fmt.Sprint(r),
			)
			span.SetStatus(codes.Error, "panic during verification")
			verdict = models.FailedVerdict(c.ID, now)
		}
	}()

	verdict = models.Verdict{
		CandidateID:         c.ID,
		PhoneValid:          validation.ValidatePhone(c.Phone),
		AddressPlausible:    validation.AddressPlausible(c.Address),
		CoordinatesInBounds: s.bounds.Contains(c.Latitude, c.Longitude),
	}

	match, err := s.duplicates.FindDuplicate(ctx, c.Name, c.Phone, c.Latitude, c.Longitude)
	if err != nil {
		s.logger.WarnContext(ctx, "duplicate check unavailable",
			"candidate_id", c.ID.String(),
			"error", err,
		)
		span.RecordError(err)
	}
	verdict.NoDuplicateFound = noDuplicateFound(match, err)
	if match.Found {
		verdict.DuplicateOf = match.EntryName
	}

	verdict.Notes = models.BuildNotes(verdict, err != nil)
	verdict.ComputedAt = now

	span.SetAttributes(
		attribute.Bool("verdict.phone_valid", verdict.PhoneValid),
		attribute.Bool("verdict.address_plausible", verdict.AddressPlausible),
		attribute.Bool("verdict.coordinates_in_bounds", verdict.CoordinatesInBounds),
		attribute.Bool("verdict.no_duplicate_found", verdict.NoDuplicateFound),
	)
	return verdict
}

// noDuplicateFound flips the detector's "duplicate found" into the verdict's
// "check passed" polarity. A failed lookup counts as a failed check.
func noDuplicateFound(m duplicate.Match, err error) bool {
	if err != nil {
		return false
	}
	return !m.Found
}

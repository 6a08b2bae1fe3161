// Package duplicate flags candidates that likely already exist in the
// approved directory. Results are advisory for a moderator.
package duplicate

import (
	"context"
	"math"
	"strings"

	"lifeline/internal/directory/models"
	"lifeline/internal/directory/validation"
)

// DefaultProximityDegrees is roughly 100 m at the equator.
const DefaultProximityDegrees = 0.001

// MatchReason names the predicate that flagged a duplicate.
type MatchReason string

const (
	ReasonNone      MatchReason = ""
	ReasonName      MatchReason = "name"
	ReasonPhone     MatchReason = "phone"
	ReasonProximity MatchReason = "proximity"
)

// Match is the outcome of a duplicate search. Found is the OR of the three
// predicates; Reason only records which fired first in priority order.
type Match struct {
	Found     bool        `json:"found"`
	Reason    MatchReason `json:"reason,omitempty"`
	EntryName string      `json:"entryName,omitempty"`
}

type DirectoryReader interface {
	ListApprovedSummaries(ctx context.Context) ([]models.EntrySummary, error)
}

type Detector struct {
	reader    DirectoryReader
	threshold float64
}

type Option func(*Detector)

// WithProximityThreshold overrides the per-axis coordinate threshold in degrees.
func WithProximityThreshold(degrees float64) Option {
	return func(d *Detector) {
		if degrees > 0 {
			d.threshold = degrees
		}
	}
}

func New(reader DirectoryReader, opts ...Option) *Detector {
	d := &Detector{reader: reader, threshold: DefaultProximityDegrees}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FindDuplicate reads the approved directory and matches the candidate
// against it. A read failure is returned as-is so callers never mistake it
// for "no duplicate".
func (d *Detector) FindDuplicate(ctx context.Context, name, phone string, lat, lng float64) (Match, error) {
	existing, err := d.reader.ListApprovedSummaries(ctx)
	if err != nil {
		return Match{}, err
	}
	return Evaluate(existing, name, phone, lat, lng, d.threshold), nil
}

// Evaluate runs the three predicates against a directory snapshot.
func Evaluate(existing []models.EntrySummary, name, phone string, lat, lng, threshold float64) Match {
	if len(existing) == 0 {
		return Match{}
	}
	predicates := []struct {
		reason MatchReason
		match  func(models.EntrySummary) bool
	}{
		{ReasonName, nameMatcher(name)},
		{ReasonPhone, phoneMatcher(phone)},
		{ReasonProximity, proximityMatcher(lat, lng, threshold)},
	}
	for _, p := range predicates {
		for _, e := range existing {
			if p.match(e) {
				return Match{Found: true, Reason: p.reason, EntryName: e.Name}
			}
		}
	}
	return Match{}
}

// nameMatcher matches case-insensitive substrings in either direction.
// Blank names never match.
func nameMatcher(name string) func(models.EntrySummary) bool {
	needle := strings.ToLower(strings.TrimSpace(name))
	return func(e models.EntrySummary) bool {
		if needle == "" {
			return false
		}
		existing := strings.ToLower(strings.TrimSpace(e.Name))
		if existing == "" {
			return false
		}
		return strings.Contains(existing, needle) || strings.Contains(needle, existing)
	}
}

func phoneMatcher(phone string) func(models.EntrySummary) bool {
	normalized := validation.NormalizePhone(phone)
	return func(e models.EntrySummary) bool {
		return normalized != "" && validation.NormalizePhone(e.Phone) == normalized
	}
}

func proximityMatcher(lat, lng, threshold float64) func(models.EntrySummary) bool {
	return func(e models.EntrySummary) bool {
		// NaN compares false, so non-finite points never match.
		return math.Abs(e.Latitude-lat) <= threshold && math.Abs(e.Longitude-lng) <= threshold
	}
}

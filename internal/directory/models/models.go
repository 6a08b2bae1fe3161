package models

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	id "lifeline/pkg/domain"
	dErrors "lifeline/pkg/domain-errors"
)

// Category is the kind of emergency service a candidate claims to be.
type Category string

const (
	CategoryFire     Category = "fire"
	CategoryMedical  Category = "medical"
	CategoryPolice   Category = "police"
	CategoryRescue   Category = "rescue"
	CategoryDisaster Category = "disaster"
	CategoryOther    Category = "other"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryFire, CategoryMedical, CategoryPolice, CategoryRescue, CategoryDisaster, CategoryOther:
		return true
	}
	return false
}

// Status is the moderation state of a candidate.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// DefaultRejectionReason is recorded when a moderator rejects without a reason.
const DefaultRejectionReason = "Rejected by moderator"

const (
	maxNameLength   = 200
	maxReasonLength = 500
)

// Candidate is a user-submitted emergency service awaiting moderation.
//
// Invariants:
//   - Name is non-empty after trimming
//   - Category is one of the fixed values
//   - Latitude and Longitude are finite
//   - Status moves pending -> approved or pending -> rejected, never back
//
// Candidates are never deleted; rejected ones stay as an audit record.
type Candidate struct {
	ID          id.CandidateID `json:"id"`
	Name        string         `json:"name"`
	Category    Category       `json:"category"`
	Phone       string         `json:"phone"`
	Address     *string        `json:"address,omitempty"`
	City        *string        `json:"city,omitempty"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	SubmittedBy id.UserID      `json:"submittedBy"`
	SubmittedAt time.Time      `json:"submittedAt"`

	Status           Status      `json:"status"`
	ReviewedBy       *id.UserID  `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time  `json:"reviewedAt,omitempty"`
	RejectionReason  string      `json:"rejectionReason,omitempty"`
	OverrideWarnings []string    `json:"overrideWarnings,omitempty"`
	DirectoryEntryID *id.EntryID `json:"directoryEntryId,omitempty"`
}

// NewCandidate validates the submission and returns a pending candidate.
func NewCandidate(candidateID id.CandidateID, req SubmitRequest, submittedBy id.UserID, now time.Time) (*Candidate, error) {
	if submittedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "submitter is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "name is too long")
	}
	category := Category(strings.ToLower(strings.TrimSpace(string(req.Category))))
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "category must be one of fire, medical, police, rescue, disaster, other")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "latitude and longitude are required")
	}
	if !isFinite(*req.Latitude) || !isFinite(*req.Longitude) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "latitude and longitude must be finite numbers")
	}
	return &Candidate{
		ID:          candidateID,
		Name:        name,
		Category:    category,
		Phone:       strings.TrimSpace(req.Phone),
		Address:     trimmedOrNil(req.Address),
		City:        trimmedOrNil(req.City),
		Latitude:    *req.Latitude,
		Longitude:   *req.Longitude,
		SubmittedBy: submittedBy,
		SubmittedAt: now,
		Status:      StatusPending,
	}, nil
}

func (c *Candidate) IsPending() bool {
	return c.Status == StatusPending
}

// CanTransition reports whether a moderation decision may still be applied.
func (c *Candidate) CanTransition() error {
	if !c.IsPending() {
		return dErrors.New(dErrors.CodeTransitionConflict, "candidate is already "+string(c.Status))
	}
	return nil
}

// ApplyApproval marks the candidate approved. Call CanTransition first.
func (c *Candidate) ApplyApproval(moderator id.UserID, entryID id.EntryID, warnings []string, now time.Time) {
	c.Status = StatusApproved
	c.ReviewedBy = &moderator
	c.ReviewedAt = &now
	c.DirectoryEntryID = &entryID
	c.OverrideWarnings = slices.Clone(warnings)
}

// ApplyRejection marks the candidate rejected. Call CanTransition first.
func (c *Candidate) ApplyRejection(moderator id.UserID, reason string, now time.Time) {
	c.Status = StatusRejected
	c.ReviewedBy = &moderator
	c.ReviewedAt = &now
	c.RejectionReason = NormalizeReason(reason)
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (c *Candidate) Clone() *Candidate {
	if c == nil {
		return nil
	}
	out := *c
	out.Address = clonePtr(c.Address)
	out.City = clonePtr(c.City)
	out.ReviewedBy = clonePtr(c.ReviewedBy)
	out.ReviewedAt = clonePtr(c.ReviewedAt)
	out.DirectoryEntryID = clonePtr(c.DirectoryEntryID)
	out.OverrideWarnings = slices.Clone(c.OverrideWarnings)
	return &out
}

// NormalizeReason trims the moderator's reason, substituting the default when
// empty and capping its length.
func NormalizeReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultRejectionReason
	}
	if len(reason) > maxReasonLength {
		cut := maxReasonLength
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut]
	}
	return reason
}

// DirectoryEntry is an approved service in the public directory.
type DirectoryEntry struct {
	ID          id.EntryID     `json:"id"`
	CandidateID id.CandidateID `json:"candidateId"`
	Name        string         `json:"name"`
	Category    Category       `json:"category"`
	Phone       string         `json:"phone"`
	Address     *string        `json:"address,omitempty"`
	City        *string        `json:"city,omitempty"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	ApprovedBy  id.UserID      `json:"approvedBy"`
	ApprovedAt  time.Time      `json:"approvedAt"`
}

// NewDirectoryEntry copies a candidate's public fields into a directory entry.
func NewDirectoryEntry(entryID id.EntryID, c *Candidate, approvedBy id.UserID, now time.Time) *DirectoryEntry {
	return &DirectoryEntry{
		ID:          entryID,
		CandidateID: c.ID,
		Name:        c.Name,
		Category:    c.Category,
		Phone:       c.Phone,
		Address:     clonePtr(c.Address),
		City:        clonePtr(c.City),
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		ApprovedBy:  approvedBy,
		ApprovedAt:  now,
	}
}

func (e *DirectoryEntry) Summary() EntrySummary {
	return EntrySummary{Name: e.Name, Phone: e.Phone, Latitude: e.Latitude, Longitude: e.Longitude}
}

// EntrySummary is the projection of a directory entry used for duplicate checks.
type EntrySummary struct {
	Name      string
	Phone     string
	Latitude  float64
	Longitude float64
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

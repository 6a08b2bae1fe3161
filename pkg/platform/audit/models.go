package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers moderation decisions that change what the
	// public directory tells people during an emergency. Long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers abuse signals such as admission denials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity; can be sampled.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	// Subject is the entity acted upon: a candidate id or a limiter identifier.
	Subject string `json:"subject"`
	Action  string `json:"action"`
	// ActorID is the account that performed the action, if any.
	ActorID   string `json:"actor_id,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	// ClientDevice is the parsed User-Agent label, e.g. "Chrome on Android (mobile)".
	ClientDevice string `json:"client_device,omitempty"`
}

type AuditEvent string

const (
	// Directory moderation events
	EventCandidateSubmitted            AuditEvent = "candidate_submitted"
	EventCandidateVerified             AuditEvent = "candidate_verified"
	EventCandidateApproved             AuditEvent = "candidate_approved"
	EventCandidateApprovedWithOverride AuditEvent = "candidate_approved_with_override"
	EventCandidateRejected             AuditEvent = "candidate_rejected"

	// Admission events
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
	EventRateLimitReset    AuditEvent = "rate_limit_reset"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCandidateApproved:             CategoryCompliance,
	EventCandidateApprovedWithOverride: CategoryCompliance,
	EventCandidateRejected:             CategoryCompliance,

	EventRateLimitExceeded: CategorySecurity,
	EventRateLimitReset:    CategorySecurity,

	EventCandidateSubmitted: CategoryOperations,
	EventCandidateVerified:  CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives a copy of every persisted event (e.g. a message broker).
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

package models

import (
	"time"
)

// EndpointClass categorizes endpoints for differentiated rate limiting.
type EndpointClass string

const (
	// ClassEmergency: submission of new emergency services (10 req/min)
	ClassEmergency EndpointClass = "emergency"
	// ClassStandard: moderation writes such as verify, approve, reject (60 req/min)
	ClassStandard EndpointClass = "standard"
	// ClassAuth: authentication-adjacent endpoints (5 req / 5 min)
	ClassAuth EndpointClass = "auth"
	// ClassReadOnly: directory and queue reads (200 req/min)
	ClassReadOnly EndpointClass = "read_only"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassEmergency, ClassStandard, ClassAuth, ClassReadOnly:
		return true
	}
	return false
}

func (c EndpointClass) String() string {
	return string(c)
}

// Limit is the admission budget for one class: MaxRequests per Window.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Entry is the counter state of one identifier in one class.
type Entry struct {
	Count         int
	WindowResetAt time.Time
}

// Expired reports whether the entry's window has elapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.WindowResetAt)
}

// Result represents the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

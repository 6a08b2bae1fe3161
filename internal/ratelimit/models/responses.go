package models

import "time"

// RateLimitExceededResponse is the API response when rate limit is exceeded.
type RateLimitExceededResponse struct {
	Error      string `json:"error"` // "rate_limit_exceeded"
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // seconds
}

// ResetRequest is the admin request clearing one identifier's counter.
type ResetRequest struct {
	Class      EndpointClass `json:"class"`
	Identifier string        `json:"identifier"`
}

// ResetResponse echoes the cleared counter.
type ResetResponse struct {
	Class      EndpointClass `json:"class"`
	Identifier string        `json:"identifier"`
	ResetAt    time.Time     `json:"reset_at"`
}

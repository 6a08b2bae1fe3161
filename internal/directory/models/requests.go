package models

import (
	"time"
)

// SubmitRequest is the payload of a service submission. Coordinates are
// pointers so a missing value is distinguishable from zero.
type SubmitRequest struct {
	Name      string   `json:"name"`
	Category  Category `json:"category"`
	Phone     string   `json:"phone"`
	Address   *string  `json:"address,omitempty"`
	City      *string  `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// PendingReview pairs a pending candidate with its current verdict.
type PendingReview struct {
	Candidate *Candidate `json:"candidate"`
	Verdict   *Verdict   `json:"verdict"`
}

// ApprovalResult reports the outcome of an approval. Overridden is set when
// the moderator approved despite failing critical checks.
type ApprovalResult struct {
	Candidate  *Candidate      `json:"candidate"`
	Entry      *DirectoryEntry `json:"entry"`
	Overridden bool            `json:"overridden"`
	Warnings   []string        `json:"warnings,omitempty"`
}

type ListResponse[T any] struct {
	Items     []T       `json:"items"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
}

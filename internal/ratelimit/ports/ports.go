// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple packages to avoid duplication.
package ports

import (
	"context"
	"time"

	"lifeline/internal/ratelimit/models"
	"lifeline/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks WindowStore,AuditPublisher

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// WindowStore manages fixed-window admission counters.
type WindowStore interface {
	// Allow atomically checks and, when admitted, increments the counter for
	// key. A denial leaves the stored entry untouched.
	Allow(ctx context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error)

	// Reset clears the counter for a key.
	Reset(ctx context.Context, key string) error

	// Sweep evicts entries whose window elapsed before now and reports how
	// many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

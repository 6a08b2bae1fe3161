// Package ports defines the collaborators of the moderation service.
// Store implementations live under internal/directory/store.
package ports

import (
	"context"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Store,TxStore,Tx,VerdictStore,Verifier,AuditPublisher

// Store is the non-transactional view of candidates and the directory.
// Lookups of missing records return sentinel.ErrNotFound.
type Store interface {
	CreateCandidate(ctx context.Context, c *models.Candidate) error
	FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	ListPending(ctx context.Context) ([]*models.Candidate, error)
	ListEntries(ctx context.Context) ([]*models.DirectoryEntry, error)
	ListApprovedSummaries(ctx context.Context) ([]models.EntrySummary, error)
}

// TxStore is the store view handed to a transaction body.
type TxStore interface {
	// FindCandidateForUpdate loads the candidate and holds it until the
	// transaction ends.
	FindCandidateForUpdate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	// UpdateCandidateReview writes the review fields. It only applies while
	// the stored candidate is pending and returns sentinel.ErrInvalidState
	// otherwise.
	UpdateCandidateReview(ctx context.Context, c *models.Candidate) error
	// InsertEntry adds an approved entry. A second entry for the same
	// candidate returns sentinel.ErrConflict.
	InsertEntry(ctx context.Context, e *models.DirectoryEntry) error
}

// Tx runs fn as one unit scoped to a candidate: either every write fn made
// is applied or none is.
type Tx interface {
	RunInTx(ctx context.Context, candidateID id.CandidateID, fn func(store TxStore) error) error
}

// VerdictStore keeps the current verdict per candidate. Get returns
// sentinel.ErrNotFound when none is current.
type VerdictStore interface {
	Get(ctx context.Context, candidateID id.CandidateID) (*models.Verdict, error)
	Put(ctx context.Context, v *models.Verdict) error
	Delete(ctx context.Context, candidateID id.CandidateID) error
}

type Verifier interface {
	Verify(ctx context.Context, c *models.Candidate) models.Verdict
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

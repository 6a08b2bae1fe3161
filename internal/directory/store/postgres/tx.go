package postgres

import (
	"context"
	"database/sql"
	"time"

	"lifeline/internal/directory/models"
	"lifeline/internal/directory/ports"
	id "lifeline/pkg/domain"
	dErrors "lifeline/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Tx runs moderation transitions in one database transaction. The candidate
// row lock taken by FindCandidateForUpdate serializes concurrent transitions.
type Tx struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTx(db *sql.DB) *Tx {
	return &Tx{db: db, timeout: defaultTxTimeout}
}

func (t *Tx) RunInTx(ctx context.Context, _ id.CandidateID, fn func(store ports.TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err, "commit transaction")
	}
	return nil
}

// txStore binds the transactional queries to one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func (s *txStore) FindCandidateForUpdate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	return findCandidate(ctx, s.tx, candidateID, true)
}

func (s *txStore) UpdateCandidateReview(ctx context.Context, c *models.Candidate) error {
	return updateCandidateReview(ctx, s.tx, c)
}

func (s *txStore) InsertEntry(ctx context.Context, e *models.DirectoryEntry) error {
	return insertEntry(ctx, s.tx, e)
}

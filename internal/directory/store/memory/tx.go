package memory

import (
	"context"
	"sync"
	"time"

	"lifeline/internal/directory/models"
	"lifeline/internal/directory/ports"
	id "lifeline/pkg/domain"
	dErrors "lifeline/pkg/domain-errors"
	"lifeline/pkg/platform/sentinel"
)

// numTxShards spreads per-candidate locks so unrelated candidates do not
// contend.
const numTxShards = 128

const defaultTxTimeout = 5 * time.Second

// Tx serializes transactions per candidate with sharded mutexes and applies
// their writes in two phases: the body stages writes, and the staged set is
// committed in one step only when the body succeeds.
type Tx struct {
	shards  [numTxShards]sync.Mutex
	store   *Store
	timeout time.Duration
}

func NewTx(store *Store) *Tx {
	return &Tx{store: store, timeout: defaultTxTimeout}
}

func (t *Tx) RunInTx(ctx context.Context, candidateID id.CandidateID, fn func(store ports.TxStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := &t.shards[hashCandidate(candidateID)%numTxShards]
	shard.Lock()
	defer shard.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := &stagedStore{base: t.store}
	if err := fn(staged); err != nil {
		return err
	}
	return t.store.apply(staged.updates, staged.inserts)
}

// stagedStore reads through to the base store and buffers writes.
type stagedStore struct {
	base    *Store
	updates []*models.Candidate
	inserts []*models.DirectoryEntry
}

func (s *stagedStore) FindCandidateForUpdate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	for i := len(s.updates) - 1; i >= 0; i-- {
		if s.updates[i].ID == candidateID {
			return s.updates[i].Clone(), nil
		}
	}
	return s.base.FindCandidate(ctx, candidateID)
}

func (s *stagedStore) UpdateCandidateReview(ctx context.Context, c *models.Candidate) error {
	current, err := s.base.FindCandidate(ctx, c.ID)
	if err != nil {
		return err
	}
	if !current.IsPending() {
		return sentinel.ErrInvalidState
	}
	s.updates = append(s.updates, c.Clone())
	return nil
}

func (s *stagedStore) InsertEntry(_ context.Context, e *models.DirectoryEntry) error {
	for _, staged := range s.inserts {
		if staged.CandidateID == e.CandidateID {
			return sentinel.ErrConflict
		}
	}
	stored := *e
	s.inserts = append(s.inserts, &stored)
	return nil
}

// hashCandidate is FNV-1a over the id bytes.
func hashCandidate(candidateID id.CandidateID) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for _, b := range candidateID {
		h ^= uint32(b)
		h *= fnvPrime
	}
	return h
}

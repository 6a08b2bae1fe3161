// Package memory keeps candidates and directory entries in process memory.
package memory

import (
	"context"
	"sync"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// Store is safe for concurrent use. Records are cloned on the way in and out
// so callers never alias stored state.
type Store struct {
	mu         sync.RWMutex
	candidates map[id.CandidateID]*models.Candidate
	entries    map[id.EntryID]*models.DirectoryEntry
	// entryByCandidate enforces one directory entry per candidate.
	entryByCandidate map[id.CandidateID]id.EntryID
	// submission and approval order for stable listings
	candidateOrder []id.CandidateID
	entryOrder     []id.EntryID
}

func New() *Store {
	return &Store{
		candidates:       make(map[id.CandidateID]*models.Candidate),
		entries:          make(map[id.EntryID]*models.DirectoryEntry),
		entryByCandidate: make(map[id.CandidateID]id.EntryID),
	}
}

func (s *Store) CreateCandidate(_ context.Context, c *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; ok {
		return sentinel.ErrConflict
	}
	s.candidates[c.ID] = c.Clone()
	s.candidateOrder = append(s.candidateOrder, c.ID)
	return nil
}

func (s *Store) FindCandidate(_ context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[candidateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) ListPending(_ context.Context) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Candidate, 0)
	for _, cid := range s.candidateOrder {
		if c := s.candidates[cid]; c.IsPending() {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListEntries(_ context.Context) ([]*models.DirectoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.DirectoryEntry, 0, len(s.entryOrder))
	for _, eid := range s.entryOrder {
		e := *s.entries[eid]
		out = append(out, &e)
	}
	return out, nil
}

func (s *Store) ListApprovedSummaries(_ context.Context) ([]models.EntrySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.EntrySummary, 0, len(s.entryOrder))
	for _, eid := range s.entryOrder {
		out = append(out, s.entries[eid].Summary())
	}
	return out, nil
}

// EntryCount reports how many directory entries exist.
func (s *Store) EntryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// apply validates and writes a staged change set under one lock, so either
// every write lands or none does.
func (s *Store) apply(updates []*models.Candidate, inserts []*models.DirectoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		stored, ok := s.candidates[u.ID]
		if !ok {
			return sentinel.ErrNotFound
		}
		if !stored.IsPending() {
			return sentinel.ErrInvalidState
		}
	}
	seen := make(map[id.CandidateID]bool, len(inserts))
	for _, e := range inserts {
		if _, exists := s.entryByCandidate[e.CandidateID]; exists || seen[e.CandidateID] {
			return sentinel.ErrConflict
		}
		if _, exists := s.entries[e.ID]; exists {
			return sentinel.ErrConflict
		}
		seen[e.CandidateID] = true
	}

	for _, u := range updates {
		s.candidates[u.ID] = u.Clone()
	}
	for _, e := range inserts {
		stored := *e
		s.entries[e.ID] = &stored
		s.entryByCandidate[e.CandidateID] = e.ID
		s.entryOrder = append(s.entryOrder, e.ID)
	}
	return nil
}

// Package verdict caches the current verification verdict per candidate.
// A verdict is transient: it expires after a TTL and is dropped once the
// candidate leaves the pending state.
package verdict

import (
	"context"
	"sync"
	"time"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

// DefaultTTL bounds how long a verdict stays current without recomputation.
const DefaultTTL = 30 * time.Minute

type entry struct {
	verdict   models.Verdict
	expiresAt time.Time
}

// InMemoryStore evicts an expired verdict when it is read, and sweeps the
// whole map from Put at most once per TTL so unread entries do not pile up.
type InMemoryStore struct {
	mu        sync.RWMutex
	entries   map[id.CandidateID]entry
	ttl       time.Duration
	clock     func() time.Time
	lastSweep time.Time
}

type Option func(*InMemoryStore)

func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryStore) {
		s.clock = clock
	}
}

func NewInMemoryStore(ttl time.Duration, opts ...Option) *InMemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		entries: make(map[id.CandidateID]entry),
		ttl:     ttl,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.clock()
	return s
}

func (s *InMemoryStore) Get(_ context.Context, candidateID id.CandidateID) (*models.Verdict, error) {
	now := s.clock()
	s.mu.RLock()
	e, ok := s.entries[candidateID]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !now.Before(e.expiresAt) {
		s.evict(candidateID, now)
		return nil, sentinel.ErrNotFound
	}
	v := e.verdict
	return &v, nil
}

// evict removes the entry unless a concurrent Put refreshed it.
func (s *InMemoryStore) evict(candidateID id.CandidateID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[candidateID]; ok && !now.Before(e.expiresAt) {
		delete(s.entries, candidateID)
	}
}

// Put replaces the current verdict; verdicts are never merged.
func (s *InMemoryStore) Put(_ context.Context, v *models.Verdict) error {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) >= s.ttl {
		for cid, e := range s.entries {
			if !now.Before(e.expiresAt) {
				delete(s.entries, cid)
			}
		}
		s.lastSweep = now
	}
	s.entries[v.CandidateID] = entry{verdict: *v, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, candidateID id.CandidateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, candidateID)
	return nil
}

// Len reports the number of entries held, expired or not.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

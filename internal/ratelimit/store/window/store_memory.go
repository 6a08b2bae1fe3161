package window

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"lifeline/internal/ratelimit/models"
)

const shardCount = 128

// InMemoryStore implements ports.WindowStore with fixed-window counters.
// Keys hash onto independent shards so concurrent checks for different
// identifiers rarely contend, while check-and-increment for one identifier
// happens under a single shard lock.
type InMemoryStore struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]models.Entry
}

func New() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]models.Entry)}
	}
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

// Allow checks if a request is allowed and increments the counter.
func (s *InMemoryStore) Allow(_ context.Context, key string, limit models.Limit, now time.Time) (*models.Result, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.entries[key]
	if !ok || entry.Expired(now) {
		if limit.MaxRequests <= 0 {
			return &models.Result{Allowed: false, Limit: limit.MaxRequests, ResetAt: now.Add(limit.Window)}, nil
		}
		entry = models.Entry{Count: 1, WindowResetAt: now.Add(limit.Window)}
		sh.entries[key] = entry
		return &models.Result{
			Allowed:   true,
			Limit:     limit.MaxRequests,
			Remaining: limit.MaxRequests - 1,
			ResetAt:   entry.WindowResetAt,
		}, nil
	}

	if entry.Count >= limit.MaxRequests {
		return &models.Result{
			Allowed:   false,
			Limit:     limit.MaxRequests,
			Remaining: 0,
			ResetAt:   entry.WindowResetAt,
		}, nil
	}

	entry.Count++
	sh.entries[key] = entry
	return &models.Result{
		Allowed:   true,
		Limit:     limit.MaxRequests,
		Remaining: limit.MaxRequests - entry.Count,
		ResetAt:   entry.WindowResetAt,
	}, nil
}

// Reset clears the rate limit counter for a key.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.entries, key)
	return nil
}

// Sweep removes expired entries one shard at a time, so a check only ever
// waits on the sweep of its own shard.
func (s *InMemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Len returns the number of tracked entries, expired or not.
func (s *InMemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Get returns the stored entry for key.
func (s *InMemoryStore) Get(key string) (models.Entry, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	return e, ok
}

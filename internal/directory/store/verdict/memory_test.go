package verdict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/directory/models"
	id "lifeline/pkg/domain"
	"lifeline/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewInMemoryStore(10*time.Minute, WithClock(clock))
	cid := id.NewCandidateID()

	t.Run("missing verdict is not found", func(t *testing.T) {
		_, err := store.Get(ctx, cid)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("put replaces the current verdict", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &models.Verdict{CandidateID: cid, PhoneValid: true, Notes: "first"}))
		require.NoError(t, store.Put(ctx, &models.Verdict{CandidateID: cid, Notes: "second"}))

		got, err := store.Get(ctx, cid)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Notes)
		assert.False(t, got.PhoneValid, "recomputation replaces, never merges")
	})

	t.Run("returned verdict is a copy", func(t *testing.T) {
		got, err := store.Get(ctx, cid)
		require.NoError(t, err)
		got.Notes = "mutated"
		again, _ := store.Get(ctx, cid)
		assert.Equal(t, "second", again.Notes)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		now = now.Add(10 * time.Minute)
		_, err := store.Get(ctx, cid)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Zero(t, store.Len(), "expired verdict is evicted on read")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &models.Verdict{CandidateID: cid}))
		require.NoError(t, store.Delete(ctx, cid))
		_, err := store.Get(ctx, cid)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestInMemoryStore_SweepsUnreadVerdicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewInMemoryStore(time.Minute, WithClock(func() time.Time { return now }))

	for range 3 {
		require.NoError(t, store.Put(ctx, &models.Verdict{CandidateID: id.NewCandidateID()}))
	}
	require.Equal(t, 3, store.Len())

	now = now.Add(time.Minute)
	fresh := id.NewCandidateID()
	require.NoError(t, store.Put(ctx, &models.Verdict{CandidateID: fresh}))

	assert.Equal(t, 1, store.Len())
	_, err := store.Get(ctx, fresh)
	assert.NoError(t, err)
}

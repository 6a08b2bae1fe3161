package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	audit "lifeline/pkg/platform/audit"
	"lifeline/pkg/platform/audit/store/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Publish(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subject := uuid.NewString()
	event := audit.Event{
		Subject: subject,
		Action:  string(audit.EventCandidateSubmitted),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventCandidateSubmitted), events[0].Action)
	assert.NotEmpty(t, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	subject := uuid.NewString()
	err := pub.Emit(context.Background(), audit.Event{
		Subject: subject,
		Action:  string(audit.EventCandidateVerified),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events, _ := pub.List(context.Background(), subject)
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	subject := uuid.NewString()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: subject,
			Action:  string(audit.EventRateLimitExceeded),
		})
		require.NoError(t, err)
	}

	pub.Close()

	events, err := store.ListBySubject(context.Background(), subject)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_EmitAfterClose(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	pub.Close()
	pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventCandidateSubmitted)})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Subject: "ip:10.0.0.1",
				Action:  string(audit.EventRateLimitExceeded),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestampAndCategory(t *testing.T) {
	store := memory.NewInMemoryStore()
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	subject := uuid.NewString()
	err := pub.Emit(context.Background(), audit.Event{
		Subject: subject,
		Action:  string(audit.EventCandidateRejected),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	subject := uuid.NewString()
	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	err := pub.Emit(context.Background(), audit.Event{
		Subject:   subject,
		Action:    string(audit.EventCandidateApproved),
		Timestamp: customTime,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

func TestPublisher_ForwardsToSinks(t *testing.T) {
	store := memory.NewInMemoryStore()
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("broker down")}
	pub := NewPublisher(store, WithSink(ok), WithSink(failing), WithSink(nil))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: uuid.NewString(),
		Action:  string(audit.EventCandidateApprovedWithOverride),
	})
	require.NoError(t, err, "sink failures must not fail the emit")
	assert.Equal(t, 1, ok.count())

	recent, err := pub.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestPublisher_ContextCancellation(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	_ = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventCandidateSubmitted)})
	_ = pub.Emit(context.Background(), audit.Event{Action: string(audit.EventCandidateSubmitted)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{Action: string(audit.EventCandidateSubmitted)})
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrBufferFull),
			"expected context.Canceled or buffer full error, got: %v", err)
	}
}

func TestAuditEvent_Category(t *testing.T) {
	assert.Equal(t, audit.CategoryCompliance, audit.EventCandidateApproved.Category())
	assert.Equal(t, audit.CategorySecurity, audit.EventRateLimitExceeded.Category())
	assert.Equal(t, audit.CategoryOperations, audit.EventCandidateSubmitted.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("unknown").Category())
}

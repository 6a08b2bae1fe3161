// Package publisher fans audit events out to a store and optional sinks.
//
// Sync mode persists before Emit returns, which is what moderation
// decisions use. Async mode queues events behind a bounded buffer and
// drains on Close.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "lifeline/pkg/platform/audit"
	"lifeline/pkg/platform/audit/worker"

	"github.com/google/uuid"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

type Publisher struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger
	clock  func() time.Time

	bufferSize int
	queue      chan audit.Event
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a bounded queue.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.bufferSize = size
	}
}

// WithSink forwards each persisted event to sink. Sink failures are logged.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.sinks = append(p.sinks, sink)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithClock(clock func() time.Time) Option {
	return func(p *Publisher) {
		p.clock = clock
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.queue = make(chan audit.Event, p.bufferSize)
		w := worker.NewWorker(p.persist, p.queue, p.logger)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit records an event. Missing id, timestamp and category are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.clock()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.queue == nil {
		return p.persist(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// List returns events recorded for a subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// ListRecent returns the most recent events across all subjects.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close stops accepting events and waits for the queue to drain.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.queue != nil {
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink publish failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	}
	return nil
}

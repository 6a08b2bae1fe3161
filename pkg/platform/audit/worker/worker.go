package worker

import (
	"context"
	"log/slog"

	audit "lifeline/pkg/platform/audit"
)

// Handler persists or forwards a single event.
type Handler func(ctx context.Context, event audit.Event) error

// Worker consumes audit events from a channel and hands them to a handler
// until the channel closes. Handler failures are logged and skipped so one
// bad event cannot stall the queue.
type Worker struct {
	handle Handler
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(handle Handler, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{handle: handle, inbox: inbox, logger: logger}
}

// Run drains the inbox. It returns nil once the inbox is closed and empty.
func (w *Worker) Run(ctx context.Context) error {
	for event := range w.inbox {
		if err := w.handle(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "audit event dropped",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
	}
	return nil
}

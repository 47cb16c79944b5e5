// Package worker drains audit events off a channel and appends them to
// a store, keeping audit writes off the query path.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "meridian/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

// New constructs a worker reading from inbox.
func New(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run processes events until the context is canceled. A failed append
// is logged and dropped; audit persistence never takes the engine down.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"error", err,
				)
			}
		}
	}
}

// Publisher emits events into a bounded channel feeding the worker.
// Emit never blocks: when the channel is full the event is dropped and
// counted, since a stalled audit pipeline must not stall queries.
type Publisher struct {
	outbox chan<- audit.Event
	logger *slog.Logger
}

// NewPublisher wraps the worker's inbox channel.
func NewPublisher(outbox chan<- audit.Event, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{outbox: outbox, logger: logger}
}

// Emit enqueues the event for background persistence.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.CategoryOf(event.Action)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.outbox <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit outbox full, dropping event",
			"action", event.Action,
		)
		return nil
	}
}

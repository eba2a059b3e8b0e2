package worker

import (
	"context"
	"log/slog"

	audit "oddcert/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A failed
// append is logged and the worker moves on; only fail-open events travel
// through the channel.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists events until ctx is cancelled or the inbox is closed. A
// closed inbox is drained completely before Run returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			// Persist with a context that survives shutdown so drained events land.
			if err := w.store.Append(context.WithoutCancel(ctx), event); err != nil {
				w.logger.ErrorContext(ctx, "audit event dropped",
					"action", event.Action,
					"application_id", event.ApplicationID.String(),
					"error", err,
				)
			}
		}
	}
}

package taskqueue

import (
	"context"
	"log/slog"
)

// InlineQueue runs handler on a detached background goroutine instead of
// publishing anywhere, for local/no-queue-configured operation. The handler
// signature is identical to NatsQueue's consumer side, so switching backends
// never changes worker behavior.
type InlineQueue struct {
	handler Handler
	logger  *slog.Logger
}

// NewInlineQueue binds the worker handler that Publish will invoke.
func NewInlineQueue(handler Handler, logger *slog.Logger) *InlineQueue {
	return &InlineQueue{handler: handler, logger: logger}
}

func (q *InlineQueue) Publish(ctx context.Context, _ string, payload []byte) (string, error) {
	msgID := newMessageID()
	go func() {
		// Detached from the caller's context deadline: an inline "queue" must
		// outlive the request that triggered it, matching the async-worker
		// contract the external queue provides.
		bgCtx := context.Background()
		if err := q.handler(bgCtx, payload); err != nil {
			q.logger.Error("inline task failed", "message_id", msgID, "err", err)
		}
	}()
	return msgID, nil
}

// Package taskqueue is the fire-and-forget publish surface driving worker
// invocations: a NATS-backed queue for production and an inline fallback
// that runs the exact same handler on a detached background goroutine when
// no queue is configured.
package taskqueue

import "context"

// Handler processes one task payload. Both backends invoke the same
// Handler value so the worker code path never branches on transport.
type Handler func(ctx context.Context, payload []byte) error

// Queue is the operation surface both backends implement.
type Queue interface {
	// Publish fires payload at destURL (interpreted by each backend: a NATS
	// subject for NatsQueue, ignored by InlineQueue) and returns a
	// provider-assigned message id.
	Publish(ctx context.Context, destURL string, payload []byte) (messageID string, err error)
}

// Package blobstore is the content-addressed byte store for uploads and
// export artifacts: an S3-compatible backend for production, a local
// filesystem mirror for development, selected by credential presence.
package blobstore

import (
	"context"
	"time"
)

// Store is the operation surface both backends implement.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Package jobstore holds keyed job state with a 24h TTL: an external Redis
// (Upstash-compatible) backend and an in-process memory backend, plus a
// sibling per-job extraction cache used to make retries of the expensive
// graph-extraction stage cheap.
package jobstore

import (
	"context"

	"github.com/corpusforge/corpusgraph/engine/domain"
)

// TTLSeconds is the fixed record lifetime for both backends (spec.md §6).
const TTLSeconds = 86400

// Store is the operation surface both backends implement.
type Store interface {
	Create(ctx context.Context, id string, jobType domain.JobType, metadata domain.JobMetadata) (domain.Job, error)
	UpdateProgress(ctx context.Context, id string, status domain.JobStatus, progress *int, details map[string]any) error
	UpdateMetadata(ctx context.Context, id string, patch domain.JobMetadata) error
	Get(ctx context.Context, id string) (domain.Job, error)
	SetExtractionCache(ctx context.Context, id string, data []byte) error
	GetExtractionCache(ctx context.Context, id string) ([]byte, bool, error)
}

// mergeMetadata applies non-zero fields of patch onto base, matching the
// original's dict.update merge semantics field by field (Go has no sparse
// struct patch, so zero-value fields are treated as "not provided").
func mergeMetadata(base, patch domain.JobMetadata) domain.JobMetadata {
	if patch.Filename != "" {
		base.Filename = patch.Filename
	}
	if patch.FileID != "" {
		base.FileID = patch.FileID
	}
	if patch.BlobKey != "" {
		base.BlobKey = patch.BlobKey
	}
	if patch.ProjectID != "" {
		base.ProjectID = patch.ProjectID
	}
	if patch.UserID != "" {
		base.UserID = patch.UserID
	}
	if patch.GeminiKey != "" {
		base.GeminiKey = patch.GeminiKey
	}
	if patch.OpenAIKey != "" {
		base.OpenAIKey = patch.OpenAIKey
	}
	return base
}

func isTerminal(status domain.JobStatus) bool {
	return status == domain.JobCompleted || status == domain.JobFailed
}

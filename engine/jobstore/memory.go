package jobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/corpusforge/corpusgraph/engine/domain"
)

type memoryEntry struct {
	job       domain.Job
	expiresAt time.Time
}

// MemoryStore is the in-process backend, grounded on the original's
// LocalJobService: a mutex-guarded map persisting across requests in one
// process, with lazily-swept TTL expiry instead of Redis's own EXPIRE.
type MemoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*memoryEntry
	extractAt map[string][]byte
	extractTS map[string]time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*memoryEntry),
		extractAt: make(map[string][]byte),
		extractTS: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Create(_ context.Context, id string, jobType domain.JobType, metadata domain.JobMetadata) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	job := domain.Job{
		ID:        id,
		Type:      jobType,
		Status:    domain.JobPending,
		Progress:  0,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[id] = &memoryEntry{job: job, expiresAt: now.Add(TTLSeconds * time.Second)}
	return job, nil
}

func (m *MemoryStore) UpdateProgress(_ context.Context, id string, status domain.JobStatus, progress *int, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveEntry(id)
	if !ok {
		return fmt.Errorf("%w: jobstore: job %s", domain.ErrNotFound, id)
	}
	entry.job.Status = status
	entry.job.UpdatedAt = time.Now()
	if progress != nil {
		entry.job.Progress = *progress
	}
	if details != nil && isTerminal(status) {
		entry.job.Result = details
	}
	return nil
}

func (m *MemoryStore) UpdateMetadata(_ context.Context, id string, patch domain.JobMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveEntry(id)
	if !ok {
		return fmt.Errorf("%w: jobstore: job %s", domain.ErrNotFound, id)
	}
	entry.job.Metadata = mergeMetadata(entry.job.Metadata, patch)
	entry.job.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveEntry(id)
	if !ok {
		return domain.Job{}, fmt.Errorf("%w: jobstore: job %s", domain.ErrNotFound, id)
	}
	return entry.job, nil
}

func (m *MemoryStore) SetExtractionCache(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extractAt[id] = data
	m.extractTS[id] = time.Now().Add(TTLSeconds * time.Second)
	return nil
}

func (m *MemoryStore) GetExtractionCache(_ context.Context, id string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires, ok := m.extractTS[id]
	if !ok || time.Now().After(expires) {
		delete(m.extractAt, id)
		delete(m.extractTS, id)
		return nil, false, nil
	}
	return m.extractAt[id], true, nil
}

// liveEntry returns the entry for id, treating an expired one as absent.
// Caller must hold m.mu.
func (m *MemoryStore) liveEntry(id string) (*memoryEntry, bool) {
	entry, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.jobs, id)
		return nil, false
	}
	return entry, true
}

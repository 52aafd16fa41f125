package jobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/corpusforge/corpusgraph/engine/domain"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx, "job-1", domain.JobIngest, domain.JobMetadata{ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != domain.JobPending || created.Progress != 0 {
		t.Fatalf("expected pending/0, got %+v", created)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Metadata.ProjectID != "p1" {
		t.Fatalf("expected project_id to round-trip, got %+v", got.Metadata)
	}
}

func TestMemoryStoreGetMissingIsNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreUpdateProgressIsMonotonicInStorage(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, "job-1", domain.JobIngest, domain.JobMetadata{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p40, p80 := 40, 80
	if err := store.UpdateProgress(ctx, "job-1", domain.JobProcessing, &p40, nil); err != nil {
		t.Fatalf("update 40: %v", err)
	}
	if err := store.UpdateProgress(ctx, "job-1", domain.JobProcessing, &p80, nil); err != nil {
		t.Fatalf("update 80: %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Progress != 80 {
		t.Fatalf("expected progress 80, got %d", got.Progress)
	}
}

func TestMemoryStoreResultOnlyPersistedOnTerminalStatus(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, "job-1", domain.JobIngest, domain.JobMetadata{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	progress := 50
	if err := store.UpdateProgress(ctx, "job-1", domain.JobProcessing, &progress, map[string]any{"ignored": true}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.Get(ctx, "job-1")
	if got.Result != nil {
		t.Fatalf("expected no result while non-terminal, got %+v", got.Result)
	}

	done := 100
	if err := store.UpdateProgress(ctx, "job-1", domain.JobCompleted, &done, map[string]any{"chunks_count": 3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.Get(ctx, "job-1")
	if got.Result["chunks_count"] != 3 {
		t.Fatalf("expected result persisted on terminal status, got %+v", got.Result)
	}
}

func TestMemoryStoreExtractionCacheRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, found, err := store.GetExtractionCache(ctx, "job-1")
	if err != nil || found {
		t.Fatalf("expected not found before set, got found=%v err=%v", found, err)
	}

	if err := store.SetExtractionCache(ctx, "job-1", []byte(`{"nodes":[]}`)); err != nil {
		t.Fatalf("SetExtractionCache: %v", err)
	}
	data, found, err := store.GetExtractionCache(ctx, "job-1")
	if err != nil || !found {
		t.Fatalf("expected cache hit, got found=%v err=%v", found, err)
	}
	if string(data) != `{"nodes":[]}` {
		t.Fatalf("unexpected cached data: %s", data)
	}
}

func TestMemoryStoreUpdateMetadataMergesFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, "job-1", domain.JobIngest, domain.JobMetadata{ProjectID: "p1", Filename: "a.pdf"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.UpdateMetadata(ctx, "job-1", domain.JobMetadata{GeminiKey: "key-123"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	got, _ := store.Get(ctx, "job-1")
	if got.Metadata.ProjectID != "p1" || got.Metadata.Filename != "a.pdf" {
		t.Fatalf("expected existing fields preserved, got %+v", got.Metadata)
	}
	if got.Metadata.GeminiKey != "key-123" {
		t.Fatalf("expected patched field applied, got %+v", got.Metadata)
	}
}

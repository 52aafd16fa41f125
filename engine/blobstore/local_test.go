package blobstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/corpusforge/corpusgraph/engine/domain"
)

func TestLocalStorePutGetRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "uploads/doc.pdf", []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, "uploads/doc.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected roundtrip content, got %q", got)
	}
}

func TestLocalStoreGetMissingIsNotFound(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	_, err = store.Get(context.Background(), "missing.pdf")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreDeleteIsIdempotent(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()
	if err := store.Put(ctx, "a.pdf", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "a.pdf"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "a.pdf"); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}
}

func TestLocalStoreSignedURLIsFileScheme(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	u, err := store.SignedURL(context.Background(), "exports/p1.zip", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !strings.HasPrefix(u, "file://") {
		t.Fatalf("expected file:// URL, got %q", u)
	}
}

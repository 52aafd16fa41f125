package embedder

import (
	"context"
	"reflect"
	"testing"
)

// fakeEmbedder maps text deterministically to a vector so tests can assert
// ordering without a real provider.
type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Dimension() int { return f.dim }

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i, r := range text {
		if i >= f.dim {
			break
		}
		v[i] = float32(r)
	}
	return v, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BatchViaSingle(ctx, f, texts)
}

func TestNormalizeReplacesNewlines(t *testing.T) {
	if got := Normalize("a\nb\nc"); got != "a b c" {
		t.Fatalf("got %q", got)
	}
}

func TestBatchMatchesSingleOrdering(t *testing.T) {
	e := fakeEmbedder{dim: 4}
	texts := []string{"alpha", "beta", "gamma"}

	batch, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(batch[i], single) {
			t.Fatalf("batch[%d]=%v != embed(%q)=%v", i, batch[i], text, single)
		}
	}
}

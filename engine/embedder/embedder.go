// Package embedder turns text into fixed-dimension float vectors via a
// small closed set of providers, selected at construction.
package embedder

import (
	"context"
	"strings"
)

// Embedder embeds single texts and batches, preserving input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Normalize applies the one preprocessing rule every provider shares:
// newlines are replaced with spaces before the text is sent upstream.
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}

// BatchViaSingle implements EmbedBatch in terms of Embed for providers with
// no native batch endpoint, preserving input ordering.
func BatchViaSingle(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

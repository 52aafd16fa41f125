package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/corpusforge/corpusgraph/pkg/fn"
	"github.com/corpusforge/corpusgraph/pkg/resilience"
)

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
// Grounded on the teacher's pkg/ollama HTTP-client shape; Ollama has no
// batch endpoint, so EmbedBatch falls back to sequential calls.
type OllamaEmbedder struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
	breaker *resilience.Breaker
}

// NewOllamaEmbedder constructs an OllamaEmbedder. dim is the expected
// output dimension, fixed per project once first persisted.
func NewOllamaEmbedder(baseURL, model string, dim int) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		dim:     dim,
		client:  &http.Client{},
		breaker: resilience.NewBreaker(resilience.BreakerOpts{}),
	}
}

func (c *OllamaEmbedder) Dimension() int { return c.dim }

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (c *OllamaEmbedder) Embed(ctx context.Context, t string) ([]float32, error) {
	res := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]float32] {
		v, err := c.embedOnce(ctx, t)
		if err != nil {
			return fn.Err[[]float32](err)
		}
		return fn.Ok(v)
	})
	return res.Unwrap()
}

func (c *OllamaEmbedder) embedOnce(ctx context.Context, t string) ([]float32, error) {
	text := Normalize(t)
	body, err := json.Marshal(ollamaEmbedReq{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (c *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return BatchViaSingle(ctx, c, texts)
}

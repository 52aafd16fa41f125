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

// OpenAIEmbedder calls an OpenAI-compatible /v1/embeddings endpoint. Modeled
// on OllamaEmbedder's HTTP-client shape since no pack repo calls this API
// directly; this provider does use the API's native batch support.
type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	dim     int
	client  *http.Client
	breaker *resilience.Breaker
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder. baseURL defaults to
// https://api.openai.com if empty, to support OpenAI-compatible gateways.
func NewOpenAIEmbedder(baseURL, apiKey, model string, dim int) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	return &OpenAIEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		client:  &http.Client{},
		breaker: resilience.NewBreaker(resilience.BreakerOpts{}),
	}
}

func (c *OpenAIEmbedder) Dimension() int { return c.dim }

type openaiEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *OpenAIEmbedder) Embed(ctx context.Context, t string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{t})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[][]float32] {
		v, err := c.embedBatchOnce(ctx, texts)
		if err != nil {
			return fn.Err[[][]float32](err)
		}
		return fn.Ok(v)
	})
	return res.Unwrap()
}

func (c *OpenAIEmbedder) embedBatchOnce(ctx context.Context, texts []string) ([][]float32, error) {
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = Normalize(t)
	}

	body, err := json.Marshal(openaiEmbedReq{Model: c.model, Input: normalized})
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai embed: status %d", resp.StatusCode)
	}

	var result openaiEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("openai embed decode: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Package llm wraps Google's Gemini API (via google.golang.org/genai) for
// both one-shot generation and the document-scoped context caches that the
// ingestion and export phases share across a project's lifetime.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/pkg/fn"
	"github.com/corpusforge/corpusgraph/pkg/resilience"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// Client is LLMClient: a thin, BYOK-keyed wrapper over one genai.Client.
// Each project brings its own Gemini key, so a Client is constructed fresh
// per job rather than shared as a singleton.
type Client struct {
	genai   *genai.Client
	model   string
	breaker *resilience.Breaker
}

// New constructs a Client for a single caller-supplied API key. Strict
// BYOK: an empty key is a configuration error, not a default-credential
// fallback.
func New(ctx context.Context, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", domain.ErrConfigMissing)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{genai: c, model: defaultModel, breaker: resilience.NewBreaker(resilience.BreakerOpts{})}, nil
}

// GenerateOptions configures one Generate call.
type GenerateOptions struct {
	// Schema is a JSON schema string. When non-empty, the response is
	// requested as JSON and passed through the tolerant-repair pass.
	Schema string
	// CachedContent is an opaque handle from CacheService.Create. When
	// set, the call is billed against the cached document instead of
	// resending it.
	CachedContent string
	Temperature   float64
	// MIME is "json" or "text"; defaults to "text" unless Schema is set.
	MIME string
}

// Generate sends prompt to Gemini and returns the (optionally
// schema-repaired) text response. A cache-miss or expired CachedContent is
// surfaced as domain.ErrCacheMiss so callers can fall back to RAG mode.
func (c *Client) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	mime := opts.MIME
	if mime == "" && opts.Schema != "" {
		mime = "json"
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if mime == "json" {
		config.ResponseMIMEType = "application/json"
	}
	if opts.CachedContent != "" {
		config.CachedContent = opts.CachedContent
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	// A stale/missing CachedContent handle is a routine, expected outcome
	// (the caller falls back to RAG mode), not an upstream fault, so it is
	// carried through the breaker as an Ok result rather than a failure
	// that would count toward tripping it.
	result := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[generateOutcome] {
		resp, err := c.genai.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			if isCacheError(err) {
				return fn.Ok(generateOutcome{cacheMiss: true})
			}
			return fn.Err[generateOutcome](fmt.Errorf("%w: generate: %v", domain.ErrUpstreamTransient, err))
		}
		text := resp.Text()
		if opts.Schema != "" {
			text = Repair(text)
		}
		return fn.Ok(generateOutcome{text: text})
	})

	outcome, err := result.Unwrap()
	if err != nil {
		return "", err
	}
	if outcome.cacheMiss {
		return "", fmt.Errorf("%w: cached content not found or expired", domain.ErrCacheMiss)
	}
	return outcome.text, nil
}

type generateOutcome struct {
	text      string
	cacheMiss bool
}

func isCacheError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cached content") && (strings.Contains(msg, "not found") || strings.Contains(msg, "expired"))
}

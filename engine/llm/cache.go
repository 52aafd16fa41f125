package llm

import (
	"context"
	"fmt"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"google.golang.org/genai"
)

// CacheMeta is the subset of cache metadata callers need to verify
// liveness.
type CacheMeta struct {
	Name       string
	ExpireTime string
}

// CacheService manages Gemini context caches for single documents. The
// returned handle is persisted in project_metadata.gemini_cache_name and
// reused across the ingestion and export phases of one project.
type CacheService struct {
	genai *genai.Client
	model string
}

// NewCacheService constructs a CacheService over the same BYOK key as a
// Client.
func NewCacheService(ctx context.Context, apiKey string) (*CacheService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", domain.ErrConfigMissing)
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &CacheService{genai: c, model: defaultModel}, nil
}

// Create uploads document text to the provider and returns an opaque cache
// handle. ttlSeconds defaults to 3600 when zero.
func (s *CacheService) Create(ctx context.Context, text, projectID string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	cached, err := s.genai.Caches.Create(ctx, s.model, &genai.CreateCachedContentConfig{
		Contents:    []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TTL:         fmt.Sprintf("%ds", ttlSeconds),
		DisplayName: fmt.Sprintf("project_%s_cache", projectID),
	})
	if err != nil {
		return "", fmt.Errorf("%w: create cache: %v", domain.ErrUpstreamTransient, err)
	}
	return cached.Name, nil
}

// Get retrieves cache metadata to verify it exists and has not expired.
// A nil result (with nil error) means the cache is gone.
func (s *CacheService) Get(ctx context.Context, handle string) (*CacheMeta, error) {
	if handle == "" {
		return nil, nil
	}
	cached, err := s.genai.Caches.Get(ctx, handle, nil)
	if err != nil {
		return nil, nil
	}
	return &CacheMeta{Name: cached.Name, ExpireTime: cached.ExpireTime.String()}, nil
}

// Delete explicitly deletes the cache to stop further billing against it.
func (s *CacheService) Delete(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	_, err := s.genai.Caches.Delete(ctx, handle, nil)
	return err
}

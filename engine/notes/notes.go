// Package notes generates the Obsidian-style markdown body for a single
// graph node, either from a document-scoped LLM cache or via RAG over the
// project's chunk embeddings, followed by a tolerant markdown-repair pass.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/embedder"
	"github.com/corpusforge/corpusgraph/engine/llm"
)

// ContextProvider retrieves the top-k chunk contents for a project by
// similarity to a query vector. Backed by the Qdrant mirror index in
// production; fakeable in tests.
type ContextProvider interface {
	TopChunks(ctx context.Context, projectID string, query []float32, limit int) ([]string, error)
}

const contextLimit = 5

// Service is NoteService.
type Service struct {
	client  *llm.Client
	embed   embedder.Embedder
	context ContextProvider
}

// New constructs a Service.
func New(client *llm.Client, embed embedder.Embedder, context ContextProvider) *Service {
	return &Service{client: client, embed: embed, context: context}
}

// Generate produces the markdown note body for one concept. cacheHandle is
// optional: when present and still valid, generation runs against the
// document-scoped LLM cache instead of a fresh RAG pass.
func (s *Service) Generate(ctx context.Context, projectID, conceptID string, outboundLinks []string, cacheHandle string, validConceptIDs map[string]bool) (string, error) {
	var (
		text string
		err  error
	)

	if cacheHandle != "" {
		text, err = s.generateWithCache(ctx, conceptID, outboundLinks, cacheHandle)
		if err != nil && errors.Is(err, domain.ErrCacheMiss) {
			text, err = s.generateWithRAG(ctx, projectID, conceptID, outboundLinks)
		}
	} else {
		text, err = s.generateWithRAG(ctx, projectID, conceptID, outboundLinks)
	}
	if err != nil {
		return "", err
	}

	repaired := Repair(strings.ToLower(text), validConceptIDs)
	return appendMissingRelated(repaired, outboundLinks), nil
}

func (s *Service) generateWithCache(ctx context.Context, conceptID string, outboundLinks []string, cacheHandle string) (string, error) {
	prompt := buildPrompt(conceptID, outboundLinks, "")
	return s.client.Generate(ctx, prompt, llm.GenerateOptions{
		CachedContent: cacheHandle,
		Temperature:   0,
		MIME:          "text",
	})
}

func (s *Service) generateWithRAG(ctx context.Context, projectID, conceptID string, outboundLinks []string) (string, error) {
	context, err := s.ragContext(ctx, projectID, conceptID)
	if err != nil {
		return "", err
	}
	prompt := buildPrompt(conceptID, outboundLinks, context)
	return s.client.Generate(ctx, prompt, llm.GenerateOptions{Temperature: 0, MIME: "text"})
}

func (s *Service) ragContext(ctx context.Context, projectID, conceptID string) (string, error) {
	query, err := s.embed.Embed(ctx, conceptID)
	if err != nil {
		return "", err
	}
	chunks, err := s.context.TopChunks(ctx, projectID, query, contextLimit)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "no specific context found.", nil
	}
	return strings.Join(chunks, "\n\n"), nil
}

func buildPrompt(conceptID string, outboundLinks []string, context string) string {
	linked := make([]string, len(outboundLinks))
	for i, l := range outboundLinks {
		linked[i] = fmt.Sprintf("[[%s]]", l)
	}
	linksStr := strings.Join(linked, ", ")

	return fmt.Sprintf(`summarize the concept '%s' based on the provided context.

strict requirements:
1. use obsidian markdown syntax.
2. mention all related concepts using double brackets: %s
3. use latex for any mathematical formulas or technical symbols (e.g. $e = mc^2$).
4. strictly lowercase output.
5. short and concise research notes. max 5 sentences.
6. if the context is insufficient, use your general knowledge to write a high-quality academic note.

context:
%s

note:
`, conceptID, linksStr, context)
}

// appendMissingRelated adds a "## related" section listing any outbound
// link not already present (case-insensitively) in the generated note.
func appendMissingRelated(note string, outboundLinks []string) string {
	lower := strings.ToLower(note)
	var missing []string
	for _, link := range outboundLinks {
		needle := fmt.Sprintf("[[%s]]", strings.ToLower(link))
		if !strings.Contains(lower, needle) {
			missing = append(missing, link)
		}
	}
	if len(missing) == 0 {
		return note
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(note, "\n"))
	b.WriteString("\n\n## related\n")
	for _, link := range missing {
		b.WriteString(fmt.Sprintf("- [[%s]]\n", link))
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// Package extract turns source document text into raw GraphFragments via
// the LLM, in either windowed mode (no document cache) or paginated-cache
// mode (document already cached with the provider).
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/llm"
	"github.com/corpusforge/corpusgraph/pkg/fn"
)

const (
	windowSize         = 50_000
	windowOverlap      = 5_000
	existingConceptCap = 500
	pageBatchSize      = 50
	pageBatchWorkers   = 8
)

var headingLine = regexp.MustCompile(`(?m)^#{1,2}\s+.+$`)

// rawNode mirrors the LLM's node shape, kept private: callers only see
// domain.GraphFragment.
type rawNode struct {
	ID            string   `json:"id"`
	Aliases       []string `json:"aliases"`
	OutboundLinks []string `json:"outbound_links"`
	Links         []string `json:"links"` // some prompts/models emit "links" instead
}

type rawGraphData struct {
	Nodes []rawNode `json:"nodes"`
}

func (d rawGraphData) toFragment() domain.GraphFragment {
	frag := domain.GraphFragment{Nodes: make([]domain.FragmentNode, 0, len(d.Nodes))}
	for _, n := range d.Nodes {
		outbound := n.OutboundLinks
		if len(outbound) == 0 {
			outbound = n.Links
		}
		frag.Nodes = append(frag.Nodes, domain.FragmentNode{
			ID:            n.ID,
			Aliases:       n.Aliases,
			OutboundLinks: outbound,
		})
	}
	return frag
}

// Extractor is GraphExtractor.
type Extractor struct {
	client *llm.Client
}

// New constructs an Extractor over an already-keyed LLM client.
func New(client *llm.Client) *Extractor {
	return &Extractor{client: client}
}

// skeleton concatenates every H1/H2 heading line, used to seed root
// concepts before windowed extraction begins.
func skeleton(document string) string {
	return strings.Join(headingLine.FindAllString(document, -1), "\n")
}

// ExtractWindowed runs the no-document-cache path: seed from the heading
// skeleton, then sweep overlapping windows accumulating concept IDs so
// later windows can reuse earlier ones instead of inventing synonyms.
func (e *Extractor) ExtractWindowed(ctx context.Context, document string) ([]domain.GraphFragment, error) {
	var fragments []domain.GraphFragment
	existing := make([]string, 0, existingConceptCap)
	seen := make(map[string]struct{})

	addExisting := func(frag domain.GraphFragment) {
		for _, n := range frag.Nodes {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			if len(existing) < existingConceptCap {
				existing = append(existing, n.ID)
			}
		}
	}

	if skel := skeleton(document); skel != "" {
		seed, err := e.extractFromSkeleton(ctx, skel)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, seed)
		addExisting(seed)
	}

	for _, window := range splitWindows(document, windowSize, windowOverlap) {
		frag, err := e.extractFromWindow(ctx, window, existing)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, frag)
		addExisting(frag)
	}

	return fragments, nil
}

// ExtractPaginated runs the document-cached path: a global seed pass over
// the whole document, then parallel bounded batches constrained to the
// seed's id space. Falls back to windowed mode if the seed comes back
// empty or the cache itself is unavailable.
func (e *Extractor) ExtractPaginated(ctx context.Context, document, cacheHandle string) ([]domain.GraphFragment, error) {
	globalIDs, err := e.extractGlobalSeed(ctx, cacheHandle)
	if err != nil || len(globalIDs) == 0 {
		return e.ExtractWindowed(ctx, document)
	}

	batches := fn.Chunk(globalIDs, pageBatchSize)
	results := fn.ParMapResult(batches, pageBatchWorkers, func(batch []string) fn.Result[domain.GraphFragment] {
		frag, err := e.extractPaginatedNodes(ctx, cacheHandle, batch, globalIDs)
		if err != nil {
			return fn.Err[domain.GraphFragment](err)
		}
		return fn.Ok(frag)
	})

	fragments := make([]domain.GraphFragment, 0, len(results))
	for _, r := range results {
		if r.IsErr() {
			return nil, r.Unwrap()
		}
		fragments = append(fragments, r.Must())
	}
	return fragments, nil
}

func (e *Extractor) extractFromSkeleton(ctx context.Context, skeleton string) (domain.GraphFragment, error) {
	prompt := fmt.Sprintf(`Analyze the following document outline and identify the root concepts (nodes) it introduces.

Strict Output Rules:
1. Return ONLY a valid JSON object with key "nodes".
2. Nodes format: {"id": "concept_name_lowercase", "aliases": ["synonym1"], "outbound_links": []}
3. IDs must be lowercase with spaces, singular.

Outline:
%s`, skeleton)
	return e.callForFragment(ctx, prompt)
}

func (e *Extractor) extractFromWindow(ctx context.Context, window string, existingConcepts []string) (domain.GraphFragment, error) {
	existingList := ""
	if len(existingConcepts) > 0 {
		capped := existingConcepts
		if len(capped) > existingConceptCap {
			capped = capped[:existingConceptCap]
		}
		existingList = fmt.Sprintf("Existing Concept IDs (REUSE THESE IF APPLICABLE): %s\n", strings.Join(capped, ", "))
	}

	prompt := fmt.Sprintf(`Analyze the following text and identify key concepts (nodes) and their relationships (outbound_links).

%s
Strict Output Rules:
1. Return ONLY a valid JSON object with key "nodes".
2. Nodes format: {"id": "concept_name_lowercase", "aliases": ["synonym1", "acronym"], "outbound_links": ["related_concept_id_1"]}
3. IDs must be lowercase with spaces, singular.
4. outbound_links: meaningful connections found IN THIS TEXT or to EXISTING CONCEPTS.
5. VALIDATE: every id in outbound_links is either in this response's nodes or in the Existing Concept IDs list.
6. REUSE IDs: if a concept in the text matches an existing ID or is a synonym, use that existing ID.

Text to Analyze:
%s`, existingList, window)
	return e.callForFragment(ctx, prompt)
}

func (e *Extractor) extractGlobalSeed(ctx context.Context, cacheHandle string) ([]string, error) {
	prompt := `Produce the full master list of candidate concept IDs covered by this document.

Strict Output Rules:
1. Return ONLY a valid JSON object with key "concept_ids": a flat array of lowercase, singular, space-separated concept IDs.
2. Do not include duplicates.`

	text, err := e.client.Generate(ctx, prompt, llm.GenerateOptions{
		Schema:        "object",
		CachedContent: cacheHandle,
		Temperature:   0,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		ConceptIDs []string `json:"concept_ids"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("%w: parse global seed: %v", domain.ErrUpstreamParse, err)
	}
	return out.ConceptIDs, nil
}

func (e *Extractor) extractPaginatedNodes(ctx context.Context, cacheHandle string, batchIDs, globalIDs []string) (domain.GraphFragment, error) {
	prompt := fmt.Sprintf(`Extract graph nodes for exactly this batch of concept IDs, using the cached document as context.

Batch Concept IDs (produce exactly these, no more, no fewer): %s

Full Candidate ID Space (outbound_links must be restricted to this set): %s

Strict Output Rules:
1. Return ONLY a valid JSON object with key "nodes".
2. Nodes format: {"id": "concept_name_lowercase", "aliases": ["synonym1"], "outbound_links": ["other_id"]}
3. "id" must be one of the Batch Concept IDs above.
4. Every outbound_links entry must be a member of the Full Candidate ID Space.`,
		strings.Join(batchIDs, ", "), strings.Join(globalIDs, ", "))

	return e.callForFragmentCached(ctx, prompt, cacheHandle)
}

func (e *Extractor) callForFragment(ctx context.Context, prompt string) (domain.GraphFragment, error) {
	return e.callForFragmentCached(ctx, prompt, "")
}

func (e *Extractor) callForFragmentCached(ctx context.Context, prompt, cacheHandle string) (domain.GraphFragment, error) {
	text, err := e.client.Generate(ctx, prompt, llm.GenerateOptions{
		Schema:        "object",
		CachedContent: cacheHandle,
		Temperature:   0,
	})
	if err != nil {
		return domain.GraphFragment{}, err
	}

	var data rawGraphData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return domain.GraphFragment{}, fmt.Errorf("%w: parse graph fragment: %v", domain.ErrUpstreamParse, err)
	}
	return data.toFragment(), nil
}

// splitWindows splits text into overlapping fixed-size windows.
func splitWindows(text string, size, overlap int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var windows []string
	step := size - overlap
	if step <= 0 {
		step = size
	}
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		windows = append(windows, text[start:end])
		if end == len(text) {
			break
		}
	}
	return windows
}

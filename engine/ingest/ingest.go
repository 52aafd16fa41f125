// Package ingest implements IngestionProcessor: the ten-stage, checkpointed
// worker that turns one uploaded PDF into chunk embeddings plus a merged,
// connected concept graph for its project.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corpusforge/corpusgraph/engine/blobstore"
	"github.com/corpusforge/corpusgraph/engine/chunker"
	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/embedder"
	"github.com/corpusforge/corpusgraph/engine/extract"
	"github.com/corpusforge/corpusgraph/engine/graph"
	"github.com/corpusforge/corpusgraph/engine/jobstore"
	"github.com/corpusforge/corpusgraph/engine/llm"
	"github.com/corpusforge/corpusgraph/engine/pdfextract"
	"github.com/corpusforge/corpusgraph/engine/relstore"
	"github.com/corpusforge/corpusgraph/engine/resolve"
	"github.com/corpusforge/corpusgraph/engine/semantic"
	"github.com/google/uuid"
)

// EmbedderFactory builds the Embedder to use for one job from its BYOK
// keys, matching spec.md §4.6's "provider chosen at construction" rule:
// an OpenAI key selects OpenAIEmbedder, its absence falls back to the
// locally configured Ollama instance.
type EmbedderFactory func(openAIKey string) embedder.Embedder

// Input is the worker-ingress payload for an ingest task (spec.md §6).
type Input struct {
	JobID     string
	BlobKey   string
	GeminiKey string
	OpenAIKey string
	UserID    string
}

// Deps bundles every dependency IngestionProcessor orchestrates, grounded
// on the teacher's run()-style explicit dependency construction in
// cmd/api/main.go rather than a global registry.
type Deps struct {
	Blob     blobstore.Store
	Jobs     jobstore.Store
	Rel      *relstore.Store
	Graph    *graph.Store
	Semantic *semantic.Store // optional: nil disables the ANN mirror upsert
	Embed    EmbedderFactory
	Logger   *slog.Logger
}

// Processor is IngestionProcessor.
type Processor struct {
	deps Deps
}

// New constructs a Processor.
func New(deps Deps) *Processor {
	return &Processor{deps: deps}
}

// stageFragment mirrors domain.FragmentNode/GraphFragment with JSON tags,
// used only for the extraction-cache snapshot; kept local to avoid growing
// the shared domain types with a serialization concern only this stage has.
type stageFragment struct {
	Nodes []stageNode `json:"nodes"`
}

type stageNode struct {
	ID            string   `json:"id"`
	Aliases       []string `json:"aliases"`
	OutboundLinks []string `json:"outbound_links"`
}

func toStageFragments(fragments []domain.GraphFragment) []stageFragment {
	out := make([]stageFragment, len(fragments))
	for i, f := range fragments {
		nodes := make([]stageNode, len(f.Nodes))
		for j, n := range f.Nodes {
			nodes[j] = stageNode{ID: n.ID, Aliases: n.Aliases, OutboundLinks: n.OutboundLinks}
		}
		out[i] = stageFragment{Nodes: nodes}
	}
	return out
}

func fromStageFragments(staged []stageFragment) []domain.GraphFragment {
	out := make([]domain.GraphFragment, len(staged))
	for i, f := range staged {
		nodes := make([]domain.FragmentNode, len(f.Nodes))
		for j, n := range f.Nodes {
			nodes[j] = domain.FragmentNode{ID: n.ID, Aliases: n.Aliases, OutboundLinks: n.OutboundLinks}
		}
		out[i] = domain.GraphFragment{Nodes: nodes}
	}
	return out
}

// Run executes all ten stages for one job, reporting progress after each
// and performing job/project terminal bookkeeping on every exit path —
// the Go equivalent of the original's try/finally scope.
func (p *Processor) Run(ctx context.Context, in Input) (err error) {
	log := p.deps.Logger.With("job_id", in.JobID)

	defer func() {
		if err != nil {
			p.fail(ctx, in.JobID, err)
		}
	}()

	// 1. downloading (10%)
	pdfBytes, err := p.deps.Blob.Get(ctx, in.BlobKey)
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	if err := p.progress(ctx, in.JobID, domain.JobProcessing, 10, nil); err != nil {
		return err
	}

	// 2. reading_job (20%): payload keys take precedence over stored metadata.
	job, err := p.deps.Jobs.Get(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("reading_job: %w", err)
	}
	geminiKey := firstNonEmpty(in.GeminiKey, job.Metadata.GeminiKey)
	openAIKey := firstNonEmpty(in.OpenAIKey, job.Metadata.OpenAIKey)
	if geminiKey == "" {
		return fmt.Errorf("%w: ingest: no gemini key supplied for job %s", domain.ErrConfigMissing, in.JobID)
	}
	projectID := job.Metadata.ProjectID
	if projectID == "" {
		return fmt.Errorf("%w: ingest: job %s has no project_id", domain.ErrInternal, in.JobID)
	}
	if err := p.deps.Jobs.UpdateMetadata(ctx, in.JobID, domain.JobMetadata{GeminiKey: geminiKey, OpenAIKey: openAIKey}); err != nil {
		return fmt.Errorf("reading_job: persist resolved keys: %w", err)
	}
	if err := p.progress(ctx, in.JobID, domain.JobProcessing, 20, nil); err != nil {
		return err
	}

	llmClient, err := llm.New(ctx, geminiKey)
	if err != nil {
		return fmt.Errorf("%w: ingest: construct llm client: %v", domain.ErrConfigMissing, err)
	}
	cacheSvc, err := llm.NewCacheService(ctx, geminiKey)
	if err != nil {
		return fmt.Errorf("%w: ingest: construct cache service: %v", domain.ErrConfigMissing, err)
	}
	embed := p.deps.Embed(openAIKey)

	// 3. ensure_file_row: idempotent on (project_id, blob_key).
	fileID := uuid.NewString()
	file, created, err := p.deps.Rel.EnsureFile(ctx, fileID, projectID, job.Metadata.Filename, in.BlobKey)
	if err != nil {
		return fmt.Errorf("ensure_file_row: %w", err)
	}

	// 4. pdf_to_markdown (40%)
	markdown := file.Content
	if created || markdown == "" {
		extractor := pdfextract.New()
		md, err := extractor.Extract(pdfBytes)
		if err != nil {
			return fmt.Errorf("pdf_to_markdown: %w", err)
		}
		// File.content is never shortened by a later stage of the same job.
		if len(md) >= len(markdown) {
			markdown = md
			if err := p.deps.Rel.UpdateFileContent(ctx, file.ID, markdown); err != nil {
				return fmt.Errorf("pdf_to_markdown: persist: %w", err)
			}
		}
	}
	if err := p.progress(ctx, in.JobID, domain.JobProcessing, 40, nil); err != nil {
		return err
	}

	// 5. create_doc_cache (optional, best-effort)
	var cacheHandle string
	if handle, cacheErr := cacheSvc.Create(ctx, markdown, projectID, 0); cacheErr == nil {
		cacheHandle = handle
		if err := p.deps.Rel.MutateMetadata(ctx, projectID, func(m *domain.ProjectMetadata) {
			m.GeminiCacheName = handle
		}); err != nil {
			log.Warn("create_doc_cache: failed to persist handle", "err", err)
		}
	} else {
		log.Warn("create_doc_cache: skipped", "err", cacheErr)
	}

	// 6. chunk_and_embed (60%)
	chunkCount, err := p.chunkAndEmbed(ctx, projectID, file.ID, markdown, embed)
	if err != nil {
		return fmt.Errorf("chunk_and_embed: %w", err)
	}
	if err := p.progress(ctx, in.JobID, domain.JobProcessing, 60, nil); err != nil {
		return err
	}

	// 7. graph_extraction (80%), resumable via the extraction cache.
	fragments, err := p.extractFragments(ctx, in.JobID, llmClient, markdown, cacheHandle)
	if err != nil {
		return fmt.Errorf("graph_extraction: %w", err)
	}
	if err := p.progress(ctx, in.JobID, domain.JobProcessing, 80, nil); err != nil {
		return err
	}

	// 8. resolve_and_connect
	g, err := p.resolveAndConnect(ctx, fragments, embed, log)
	if err != nil {
		return fmt.Errorf("resolve_and_connect: %w", err)
	}

	// 9. persist_graph
	if err := p.deps.Graph.Save(ctx, projectID, g); err != nil {
		return fmt.Errorf("persist_graph: %w", err)
	}

	// 10. finalize (100%)
	details := map[string]any{
		"chunks_count": chunkCount,
		"graph_nodes":  len(g.Nodes),
	}
	if err := p.progress(ctx, in.JobID, domain.JobCompleted, 100, details); err != nil {
		return err
	}
	if err := p.deps.Rel.UpdateProjectStatus(ctx, projectID, domain.ProjectComplete); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

func (p *Processor) chunkAndEmbed(ctx context.Context, projectID, fileID, markdown string, embed embedder.Embedder) (int, error) {
	chunks := chunker.Split(markdown, chunker.DefaultOptions())
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = embedder.Normalize(c.Text)
	}
	vectors, err := embed.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}

	rows := make([]domain.Chunk, len(chunks))
	points := make([]semantic.ChunkPoint, len(chunks))
	now := time.Now()
	for i, c := range chunks {
		id := uuid.NewString()
		rows[i] = domain.Chunk{
			ID:        id,
			FileID:    fileID,
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata:  domain.ChunkMetadata{Headers: c.Metadata.Headers},
			CreatedAt: now,
		}
		points[i] = semantic.ChunkPoint{ChunkID: id, FileID: fileID, ProjectID: projectID, Content: c.Text, Embedding: vectors[i]}
	}
	if err := p.deps.Rel.InsertChunks(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert chunks: %w", err)
	}
	if p.deps.Semantic != nil {
		if err := p.deps.Semantic.Upsert(ctx, points); err != nil {
			return 0, fmt.Errorf("upsert chunk vectors: %w", err)
		}
	}
	return len(chunks), nil
}

func (p *Processor) extractFragments(ctx context.Context, jobID string, client *llm.Client, markdown, cacheHandle string) ([]domain.GraphFragment, error) {
	if cached, found, err := p.deps.Jobs.GetExtractionCache(ctx, jobID); err == nil && found {
		var staged []stageFragment
		if err := json.Unmarshal(cached, &staged); err == nil {
			return fromStageFragments(staged), nil
		}
	}

	extractor := extract.New(client)
	var (
		fragments []domain.GraphFragment
		err       error
	)
	if cacheHandle != "" {
		fragments, err = extractor.ExtractPaginated(ctx, markdown, cacheHandle)
	} else {
		fragments, err = extractor.ExtractWindowed(ctx, markdown)
	}
	if err != nil {
		return nil, err
	}

	if data, marshalErr := json.Marshal(toStageFragments(fragments)); marshalErr == nil {
		_ = p.deps.Jobs.SetExtractionCache(ctx, jobID, data)
	}
	return fragments, nil
}

func (p *Processor) resolveAndConnect(ctx context.Context, fragments []domain.GraphFragment, embed embedder.Embedder, log *slog.Logger) (*domain.Graph, error) {
	var rawIDs []string
	for _, f := range fragments {
		for _, n := range f.Nodes {
			rawIDs = append(rawIDs, n.ID)
		}
	}

	resolver := resolve.New(embed, resolve.DefaultThreshold)
	idMap, err := resolver.IDMap(ctx, rawIDs)
	if err != nil {
		return nil, fmt.Errorf("entity resolution: %w", err)
	}

	g := graph.Build(fragments, idMap)

	connector := graph.NewConnector(embed, log)
	if err := connector.ConnectOrphans(ctx, g); err != nil {
		return nil, fmt.Errorf("connect orphans: %w", err)
	}
	return g, nil
}

func (p *Processor) progress(ctx context.Context, jobID string, status domain.JobStatus, progress int, details map[string]any) error {
	v := progress
	if err := p.deps.Jobs.UpdateProgress(ctx, jobID, status, &v, details); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// fail marks both the job and its project failed; errors here are logged
// only, since the original error is what the caller actually propagates.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) {
	details := map[string]any{"error": cause.Error()}
	if err := p.progress(ctx, jobID, domain.JobFailed, 0, details); err != nil {
		p.deps.Logger.Error("fail: could not update job status", "job_id", jobID, "err", err)
	}

	job, err := p.deps.Jobs.Get(ctx, jobID)
	if err != nil {
		return
	}
	if job.Metadata.ProjectID == "" {
		return
	}
	if err := p.deps.Rel.UpdateProjectStatus(ctx, job.Metadata.ProjectID, domain.ProjectFailed); err != nil {
		p.deps.Logger.Error("fail: could not update project status", "project_id", job.Metadata.ProjectID, "err", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

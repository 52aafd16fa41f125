// Package export implements ExportProcessor: generates the markdown note
// body for every graph node still missing content, in bounded batches, then
// assembles and uploads the project's Obsidian vault zip once every node is
// filled in.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corpusforge/corpusgraph/engine/blobstore"
	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/embedder"
	"github.com/corpusforge/corpusgraph/engine/graph"
	"github.com/corpusforge/corpusgraph/engine/llm"
	"github.com/corpusforge/corpusgraph/engine/notes"
	"github.com/corpusforge/corpusgraph/engine/relstore"
	"github.com/corpusforge/corpusgraph/engine/taskqueue"
)

// batchSize is how many missing-content nodes one invocation fills before
// re-enqueueing itself, bounding a single worker call's wall-clock cost.
const batchSize = 10

// concurrency is how many notes.Service.Generate calls run at once within a
// batch.
const concurrency = 4

// signedURLTTL is how long the export download link stays valid.
const signedURLTTL = 24 * time.Hour

// Input is the worker-ingress payload for a prepare_export task.
type Input struct {
	JobID     string
	ProjectID string
	GeminiKey string
	OpenAIKey string
}

// Deps bundles every dependency ExportProcessor orchestrates.
type Deps struct {
	Blob    blobstore.Store
	Rel     *relstore.Store
	Graph   *graph.Store
	Context notes.ContextProvider
	Embed   func(openAIKey string) embedder.Embedder
	Queue   taskqueue.Queue
	SelfURL string // destURL this processor re-enqueues itself under
	Logger  *slog.Logger
}

// Processor is ExportProcessor.
type Processor struct {
	deps Deps
}

// New constructs a Processor.
func New(deps Deps) *Processor {
	return &Processor{deps: deps}
}

// Run fills in up to one batch of missing-content nodes, then either
// re-enqueues itself (more remain) or assembles and uploads the final zip.
func (p *Processor) Run(ctx context.Context, in Input) error {
	log := p.deps.Logger.With("job_id", in.JobID, "project_id", in.ProjectID)

	if err := p.setExportState(ctx, in.ProjectID, domain.ExportState{Status: domain.ExportGenerating}); err != nil {
		return fmt.Errorf("export: set generating: %w", err)
	}

	cacheHandle, err := p.ensureCache(ctx, in)
	if err != nil {
		log.Warn("export: continuing without document cache", "err", err)
		cacheHandle = ""
	}

	allNodes, err := p.deps.Graph.ListByProject(ctx, in.ProjectID)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: list nodes: %w", err))
	}
	validConceptIDs := make(map[string]bool, len(allNodes))
	for _, n := range allNodes {
		validConceptIDs[n.ConceptID] = true
	}

	missing, err := p.deps.Graph.ListMissingContent(ctx, in.ProjectID, batchSize)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: list missing: %w", err))
	}

	if len(missing) > 0 {
		embed := p.deps.Embed(in.OpenAIKey)
		llmClient, err := llm.New(ctx, in.GeminiKey)
		if err != nil {
			return p.fail(ctx, in.ProjectID, fmt.Errorf("export: llm client: %w", err))
		}
		svc := notes.New(llmClient, embed, p.deps.Context)
		p.generateBatch(ctx, svc, in.ProjectID, missing, cacheHandle, validConceptIDs, log)
	}

	total, err := p.deps.Graph.CountByProject(ctx, in.ProjectID)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: count: %w", err))
	}
	remaining, err := p.deps.Graph.ListMissingContent(ctx, in.ProjectID, total)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: recheck missing: %w", err))
	}

	done := total - len(remaining)
	progress := 100
	if total > 0 {
		progress = done * 100 / total
	}
	if err := p.setExportState(ctx, in.ProjectID, domain.ExportState{Status: domain.ExportGenerating, Progress: progress}); err != nil {
		log.Warn("export: failed to record progress", "err", err)
	}

	if len(remaining) > 0 {
		if p.deps.Queue == nil {
			return p.fail(ctx, in.ProjectID, fmt.Errorf("%w: export: nodes remain but no queue configured for re-enqueue", domain.ErrInternal))
		}
		task, err := json.Marshal(domain.TaskPayload{
			JobID: in.JobID, ProjectID: in.ProjectID, Action: domain.JobPrepareExport,
			GeminiKey: in.GeminiKey, OpenAIKey: in.OpenAIKey,
		})
		if err != nil {
			return p.fail(ctx, in.ProjectID, fmt.Errorf("export: marshal re-enqueue task: %w", err))
		}
		if _, err := p.deps.Queue.Publish(ctx, p.deps.SelfURL, task); err != nil {
			return p.fail(ctx, in.ProjectID, fmt.Errorf("export: re-enqueue: %w", err))
		}
		return nil
	}

	if len(missing) > 0 {
		// Re-read so the vault carries the notes this invocation just wrote.
		allNodes, err = p.deps.Graph.ListByProject(ctx, in.ProjectID)
		if err != nil {
			return p.fail(ctx, in.ProjectID, fmt.Errorf("export: reload nodes: %w", err))
		}
	}

	return p.finalize(ctx, in, allNodes)
}

func (p *Processor) generateBatch(ctx context.Context, svc *notes.Service, projectID string, nodes []domain.GraphNode, cacheHandle string, validConceptIDs map[string]bool, log *slog.Logger) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		sem <- struct{}{}
		go func(n domain.GraphNode) {
			defer wg.Done()
			defer func() { <-sem }()

			text, err := svc.Generate(ctx, projectID, n.ConceptID, n.OutboundLinks, cacheHandle, validConceptIDs)
			if err != nil {
				log.Warn("export: note generation failed, skipping for this batch", "concept_id", n.ConceptID, "err", err)
				return
			}
			if err := p.deps.Graph.SetContent(ctx, projectID, n.ConceptID, text); err != nil {
				log.Warn("export: failed to persist note", "concept_id", n.ConceptID, "err", err)
			}
		}(n)
	}
	wg.Wait()
}

// ensureCache returns a live document-scoped LLM cache handle, recreating it
// from the stored content of the project's files if the one on file is
// unset or expired.
func (p *Processor) ensureCache(ctx context.Context, in Input) (string, error) {
	project, err := p.deps.Rel.GetProject(ctx, in.ProjectID)
	if err != nil {
		return "", err
	}

	cacheSvc, err := llm.NewCacheService(ctx, in.GeminiKey)
	if err != nil {
		return "", err
	}

	handle := project.Metadata.GeminiCacheName
	if handle != "" {
		meta, err := cacheSvc.Get(ctx, handle)
		if err != nil {
			return "", err
		}
		if meta != nil {
			return handle, nil
		}
	}

	files, err := p.deps.Rel.ListFilesByProject(ctx, in.ProjectID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w: export: no file content to rebuild cache from", domain.ErrNotFound)
	}
	var buf bytes.Buffer
	for _, f := range files {
		buf.WriteString(f.Content)
		buf.WriteString("\n\n")
	}

	newHandle, err := cacheSvc.Create(ctx, buf.String(), in.ProjectID, 0)
	if err != nil {
		return "", err
	}
	if err := p.deps.Rel.MutateMetadata(ctx, in.ProjectID, func(m *domain.ProjectMetadata) {
		m.GeminiCacheName = newHandle
	}); err != nil {
		return "", err
	}
	return newHandle, nil
}

// finalize assembles the Obsidian vault zip, uploads it, records the
// download state, and drops the now-unneeded document cache.
func (p *Processor) finalize(ctx context.Context, in Input, nodes []domain.GraphNode) error {
	archive, err := buildZip(nodes)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: build zip: %w", err))
	}

	key := fmt.Sprintf("exports/%s.zip", in.ProjectID)
	if err := p.deps.Blob.Put(ctx, key, archive); err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: upload zip: %w", err))
	}

	url, err := p.deps.Blob.SignedURL(ctx, key, signedURLTTL)
	if err != nil {
		return p.fail(ctx, in.ProjectID, fmt.Errorf("export: sign url: %w", err))
	}

	if err := p.setExportState(ctx, in.ProjectID, domain.ExportState{
		Status:      domain.ExportComplete,
		Progress:    100,
		DownloadURL: url,
	}); err != nil {
		return fmt.Errorf("export: record complete: %w", err)
	}

	if project, err := p.deps.Rel.GetProject(ctx, in.ProjectID); err == nil && project.Metadata.GeminiCacheName != "" {
		cacheSvc, err := llm.NewCacheService(ctx, in.GeminiKey)
		if err == nil {
			_ = cacheSvc.Delete(ctx, project.Metadata.GeminiCacheName)
		}
		_ = p.deps.Rel.MutateMetadata(ctx, in.ProjectID, func(m *domain.ProjectMetadata) {
			m.GeminiCacheName = ""
		})
	}

	return nil
}

func (p *Processor) setExportState(ctx context.Context, projectID string, state domain.ExportState) error {
	return p.deps.Rel.MutateMetadata(ctx, projectID, func(m *domain.ProjectMetadata) {
		m.Export = &state
	})
}

func (p *Processor) fail(ctx context.Context, projectID string, cause error) error {
	if err := p.setExportState(ctx, projectID, domain.ExportState{Status: domain.ExportFailed, Error: cause.Error()}); err != nil {
		p.deps.Logger.Error("export: failed to record failure state", "project_id", projectID, "err", err)
	}
	return cause
}

func buildZip(nodes []domain.GraphNode) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, n := range nodes {
		f, err := w.Create(n.ConceptID + ".md")
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(renderNote(n))); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderNote prepends an Obsidian frontmatter block ahead of the generated
// note body. The --- delimiters are always written; the aliases list inside
// them appears only when the node has aliases.
func renderNote(n domain.GraphNode) string {
	var b bytes.Buffer
	b.WriteString("---\n")
	if len(n.Aliases) > 0 {
		b.WriteString("aliases:\n")
		for _, a := range n.Aliases {
			b.WriteString("  - " + a + "\n")
		}
	}
	b.WriteString("---\n\n")
	b.WriteString(n.Content)
	return b.String()
}

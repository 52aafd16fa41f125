// Package orchestrator is the API-side entry point: it stores an uploaded
// PDF, creates its Job, and either publishes an ingestion task to the
// TaskQueue or invokes IngestionProcessor inline when no queue is
// configured.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corpusforge/corpusgraph/engine/blobstore"
	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/corpusforge/corpusgraph/engine/export"
	"github.com/corpusforge/corpusgraph/engine/ingest"
	"github.com/corpusforge/corpusgraph/engine/jobstore"
	"github.com/corpusforge/corpusgraph/engine/relstore"
	"github.com/corpusforge/corpusgraph/engine/taskqueue"
	"github.com/google/uuid"
)

// IngestURL is the destination passed to Queue.Publish for ingestion tasks;
// cmd/worker registers its handler under this same logical name.
const IngestURL = "ingest"

// ExportURL is the destination passed to Queue.Publish for export tasks,
// including ExportProcessor's own self-re-enqueue calls.
const ExportURL = "export"

// InitResult is what init_ingestion/trigger_export returns to the API caller.
type InitResult struct {
	JobID     string
	MessageID string
	Status    domain.JobStatus
}

// Orchestrator wires BlobStore, JobStore, RelationalStore and TaskQueue
// together. Queue may be nil, in which case ingestion and export both run
// inline on the calling goroutine's context instead of round-tripping a
// task queue. ExportProcessor may be nil in contexts (such as the CLI)
// that never trigger an export.
type Orchestrator struct {
	Blob            blobstore.Store
	Jobs            jobstore.Store
	Rel             *relstore.Store
	Queue           taskqueue.Queue
	Processor       *ingest.Processor
	ExportProcessor *export.Processor
}

// New constructs an Orchestrator. exportProcessor may be nil if this
// Orchestrator will never be asked to trigger an export.
func New(blob blobstore.Store, jobs jobstore.Store, rel *relstore.Store, queue taskqueue.Queue, processor *ingest.Processor, exportProcessor *export.Processor) *Orchestrator {
	return &Orchestrator{Blob: blob, Jobs: jobs, Rel: rel, Queue: queue, Processor: processor, ExportProcessor: exportProcessor}
}

// InitIngestion uploads content, creates the Project (if projectID is
// empty) and Job rows, and dispatches the ingestion task.
func (o *Orchestrator) InitIngestion(ctx context.Context, filename string, content []byte, userID, geminiKey, openAIKey, projectID string) (InitResult, error) {
	blobKey := fmt.Sprintf("uploads/%s-%s", uuid.NewString(), filename)
	if err := o.Blob.Put(ctx, blobKey, content); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: store upload: %w", err)
	}

	if projectID == "" {
		projectID = uuid.NewString()
		if _, err := o.Rel.CreateProject(ctx, projectID, userID, filename); err != nil {
			return InitResult{}, fmt.Errorf("orchestrator: create project: %w", err)
		}
	}

	jobID := uuid.NewString()
	metadata := domain.JobMetadata{
		Filename:  filename,
		BlobKey:   blobKey,
		ProjectID: projectID,
		UserID:    userID,
		GeminiKey: geminiKey,
		OpenAIKey: openAIKey,
	}
	if _, err := o.Jobs.Create(ctx, jobID, domain.JobIngest, metadata); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: create job: %w", err)
	}

	msgID, err := o.dispatch(ctx, jobID, blobKey, geminiKey, openAIKey)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{JobID: jobID, MessageID: msgID, Status: domain.JobPending}, nil
}

// RetryIngestion looks up an existing Job, optionally refreshes its BYOK
// keys, resets it to pending/0, and re-dispatches.
func (o *Orchestrator) RetryIngestion(ctx context.Context, jobID, geminiKey, openAIKey string) (InitResult, error) {
	job, err := o.Jobs.Get(ctx, jobID)
	if err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: retry: %w", err)
	}

	patch := domain.JobMetadata{GeminiKey: geminiKey, OpenAIKey: openAIKey}
	if err := o.Jobs.UpdateMetadata(ctx, jobID, patch); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: retry: update metadata: %w", err)
	}
	progress := 0
	if err := o.Jobs.UpdateProgress(ctx, jobID, domain.JobPending, &progress, nil); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: retry: reset progress: %w", err)
	}

	resolvedGemini := firstNonEmpty(geminiKey, job.Metadata.GeminiKey)
	resolvedOpenAI := firstNonEmpty(openAIKey, job.Metadata.OpenAIKey)
	msgID, err := o.dispatch(ctx, jobID, job.Metadata.BlobKey, resolvedGemini, resolvedOpenAI)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{JobID: jobID, MessageID: msgID, Status: domain.JobPending}, nil
}

// TriggerExport marks a project's export pending and dispatches the first
// ExportProcessor invocation. Later self-re-enqueues happen entirely inside
// the processor and never come back through this method.
func (o *Orchestrator) TriggerExport(ctx context.Context, projectID, userID, geminiKey, openAIKey string) (InitResult, error) {
	if err := o.Rel.MutateMetadata(ctx, projectID, func(m *domain.ProjectMetadata) {
		m.Export = &domain.ExportState{Status: domain.ExportPending}
	}); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: set export pending: %w", err)
	}

	jobID := uuid.NewString()
	metadata := domain.JobMetadata{ProjectID: projectID, UserID: userID, GeminiKey: geminiKey, OpenAIKey: openAIKey}
	if _, err := o.Jobs.Create(ctx, jobID, domain.JobPrepareExport, metadata); err != nil {
		return InitResult{}, fmt.Errorf("orchestrator: create export job: %w", err)
	}

	msgID, err := o.dispatchExport(ctx, jobID, projectID, geminiKey, openAIKey)
	if err != nil {
		return InitResult{}, err
	}
	return InitResult{JobID: jobID, MessageID: msgID, Status: domain.JobPending}, nil
}

func (o *Orchestrator) dispatchExport(ctx context.Context, jobID, projectID, geminiKey, openAIKey string) (string, error) {
	if o.Queue == nil {
		// No queue configured: run inline, synchronously on this goroutine.
		// This branch only ever runs for a caller (e.g. a CLI) that has no
		// taskqueue.Queue at all, not for cmd/worker, which always supplies
		// either a NatsQueue or a taskqueue.InlineQueue.
		if o.ExportProcessor == nil {
			return "", fmt.Errorf("%w: orchestrator: no export processor configured", domain.ErrInternal)
		}
		in := export.Input{JobID: jobID, ProjectID: projectID, GeminiKey: geminiKey, OpenAIKey: openAIKey}
		if err := o.ExportProcessor.Run(ctx, in); err != nil {
			return "", fmt.Errorf("orchestrator: inline export: %w", err)
		}
		return "inline", nil
	}

	payload, err := json.Marshal(domain.TaskPayload{
		JobID: jobID, ProjectID: projectID, Action: domain.JobPrepareExport,
		GeminiKey: geminiKey, OpenAIKey: openAIKey,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: marshal export task: %w", err)
	}
	msgID, err := o.Queue.Publish(ctx, ExportURL, payload)
	if err != nil {
		return "", fmt.Errorf("orchestrator: publish export task: %w", err)
	}
	return msgID, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, jobID, blobKey, geminiKey, openAIKey string) (string, error) {
	if o.Queue == nil {
		// No queue configured: run inline, synchronously on this goroutine.
		// This branch only ever runs for a caller (e.g. a CLI) that has no
		// taskqueue.Queue at all, not for cmd/worker, which always supplies
		// either a NatsQueue or a taskqueue.InlineQueue.
		in := ingest.Input{JobID: jobID, BlobKey: blobKey, GeminiKey: geminiKey, OpenAIKey: openAIKey}
		if err := o.Processor.Run(ctx, in); err != nil {
			return "", fmt.Errorf("orchestrator: inline ingestion: %w", err)
		}
		return "inline", nil
	}

	payload, err := json.Marshal(domain.TaskPayload{
		JobID: jobID, FileKey: blobKey, Action: domain.JobIngest,
		GeminiKey: geminiKey, OpenAIKey: openAIKey,
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: marshal ingestion task: %w", err)
	}
	msgID, err := o.Queue.Publish(ctx, IngestURL, payload)
	if err != nil {
		return "", fmt.Errorf("orchestrator: publish ingestion task: %w", err)
	}
	return msgID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}


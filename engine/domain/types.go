// Package domain holds the core entities shared by every stage of the
// ingestion and export pipelines: projects, files, chunks, graph nodes and
// jobs, plus the invariants that bind them together.
package domain

import (
	"regexp"
	"time"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectProcessing ProjectStatus = "processing"
	ProjectComplete   ProjectStatus = "complete"
	ProjectFailed     ProjectStatus = "failed"
)

// ExportStatus is the lifecycle state of an in-progress or completed export.
type ExportStatus string

const (
	ExportNone       ExportStatus = "none"
	ExportPending    ExportStatus = "pending"
	ExportGenerating ExportStatus = "generating"
	ExportComplete   ExportStatus = "complete"
	ExportFailed     ExportStatus = "failed"
)

// ExportState is the recognized `project_metadata.export` shape.
type ExportState struct {
	Status      ExportStatus `json:"status"`
	Progress    int          `json:"progress"`
	Message     string       `json:"message,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ProjectMetadata is project_metadata: a small set of recognized keys plus a
// pass-through map for anything else, per the re-architecture note in
// the design notes (tagged union + extra map rather than a raw blob).
type ProjectMetadata struct {
	GeminiCacheName string          `json:"gemini_cache_name,omitempty"`
	Export          *ExportState    `json:"export,omitempty"`
	Extra           map[string]any  `json:"-"`
}

// Project is the top-level unit of ingestion and export.
type Project struct {
	ID        string
	UserID    string // optional; empty if unset
	Title     string
	Status    ProjectStatus
	Metadata  ProjectMetadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// File is the one-per-(project,blob_key) source document.
type File struct {
	ID        string
	ProjectID string
	Filename  string
	BlobKey   string
	Content   string // cleaned markdown
	CreatedAt time.Time
}

// ChunkMetadata carries the header path a chunk was extracted under.
type ChunkMetadata struct {
	Headers []string
}

// Chunk is one embeddable slice of a File's content.
type Chunk struct {
	ID        string
	FileID    string
	Content   string
	Embedding []float32
	Metadata  ChunkMetadata
	CreatedAt time.Time
}

// conceptIDPattern is the canonical concept_id shape: lowercase, starts with
// an alphanumeric, spaces allowed, no underscores or other punctuation.
var conceptIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9 ]*$`)

// ValidConceptID reports whether s is a well-formed concept_id.
func ValidConceptID(s string) bool {
	return conceptIDPattern.MatchString(s)
}

// GraphNode is a persisted concept within a project's graph.
type GraphNode struct {
	ID            string
	ProjectID     string
	ConceptID     string
	Content       string // markdown note body; empty until NoteService fills it
	Aliases       []string
	OutboundLinks []string
	InboundLinks  []string
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasOutbound reports whether target is already present in n.OutboundLinks.
func (n *GraphNode) HasOutbound(target string) bool {
	for _, t := range n.OutboundLinks {
		if t == target {
			return true
		}
	}
	return false
}

// HasAlias reports whether alias is already present in n.Aliases.
func (n *GraphNode) HasAlias(alias string) bool {
	for _, a := range n.Aliases {
		if a == alias {
			return true
		}
	}
	return false
}

// HasInboundFrom reports whether source is already present in n.InboundLinks.
func (n *GraphNode) HasInboundFrom(source string) bool {
	for _, s := range n.InboundLinks {
		if s == source {
			return true
		}
	}
	return false
}

// FragmentNode is one node as returned by GraphExtractor, before merge.
type FragmentNode struct {
	ID            string
	Aliases       []string
	OutboundLinks []string
	// InboundLinks is accepted from the LLM but never stored as inbound:
	// GraphBuilder turns each entry into an outbound edge on that source
	// node, then recomputes all inbound links globally (see builder.go).
	InboundLinks []string
}

// GraphFragment is the raw output of one extraction window or batch.
type GraphFragment struct {
	Nodes []FragmentNode
}

// Graph is the in-memory merged, connected concept graph for one project.
type Graph struct {
	Nodes map[string]*GraphNode // keyed by concept_id
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*GraphNode)}
}

// Sorted returns the graph's nodes in a stable, deterministic order.
func (g *Graph) Sorted() []*GraphNode {
	out := make([]*GraphNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		out = append(out, n)
	}
	sortNodesByConceptID(out)
	return out
}

// JobType distinguishes the two worker actions.
type JobType string

const (
	JobIngest        JobType = "ingest"
	JobPrepareExport JobType = "prepare_export"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// TaskPayload is the worker-ingress wire shape: the body of a POST /tasks
// request, and also what Orchestrator serializes when it publishes a task
// onto a TaskQueue rather than invoking a processor in-process, so an HTTP
// delivery and a queue delivery decode identically.
type TaskPayload struct {
	JobID     string  `json:"job_id"`
	ProjectID string  `json:"project_id,omitempty"`
	FileKey   string  `json:"file_key,omitempty"`
	Action    JobType `json:"action"`
	GeminiKey string  `json:"gemini_key"`
	OpenAIKey string  `json:"openai_key,omitempty"`
	UserID    string  `json:"user_id,omitempty"`
}

// JobMetadata is the recognized job.metadata shape.
type JobMetadata struct {
	Filename  string
	FileID    string
	BlobKey   string
	ProjectID string
	UserID    string
	GeminiKey string
	OpenAIKey string
}

// Job is the JobStore's unit of work.
type Job struct {
	ID        string
	Type      JobType
	Status    JobStatus
	Progress  int
	Metadata  JobMetadata
	Result    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

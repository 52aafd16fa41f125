// Package relstore is the Postgres-backed relational store for Project,
// File and Chunk rows: the durable corpus half of the system, as opposed to
// the Neo4j-backed concept graph in engine/graph (see SPEC_FULL.md §2 for
// why the two are split).
package relstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns a pgx connection pool and every Project/File/Chunk operation.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-configured pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateProject inserts a new Project in the `processing` status.
func (s *Store) CreateProject(ctx context.Context, id, userID, title string) (domain.Project, error) {
	p := domain.Project{
		ID:     id,
		UserID: userID,
		Title:  title,
		Status: domain.ProjectProcessing,
	}
	metaJSON, err := marshalMetadata(p.Metadata)
	if err != nil {
		return domain.Project{}, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO projects (id, user_id, title, status, metadata)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING created_at, updated_at`,
		p.ID, p.UserID, p.Title, string(p.Status), metaJSON)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("%w: relstore: create project: %v", domain.ErrUpstreamTransient, err)
	}
	return p, nil
}

// GetProject fetches a Project by id.
func (s *Store) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, COALESCE(user_id, ''), title, status, metadata, created_at, updated_at
		FROM projects WHERE id = $1`, id)

	var p domain.Project
	var status string
	var metaJSON []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &status, &metaJSON, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Project{}, fmt.Errorf("%w: relstore: project %s: %v", domain.ErrNotFound, id, err)
	}
	p.Status = domain.ProjectStatus(status)
	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return domain.Project{}, err
	}
	p.Metadata = meta
	return p, nil
}

// UpdateProjectStatus sets Project.status.
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, status domain.ProjectStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE projects SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("%w: relstore: update project status: %v", domain.ErrUpstreamTransient, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: relstore: project %s", domain.ErrNotFound, id)
	}
	return nil
}

// MutateMetadata reads project_metadata inside a transaction, applies fn,
// and writes it back, matching spec.md's "read-modify-write under the same
// transaction" requirement.
func (s *Store) MutateMetadata(ctx context.Context, id string, fn func(*domain.ProjectMetadata)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: relstore: begin tx: %v", domain.ErrUpstreamTransient, err)
	}
	defer tx.Rollback(ctx)

	var metaJSON []byte
	row := tx.QueryRow(ctx, `SELECT metadata FROM projects WHERE id = $1 FOR UPDATE`, id)
	if err := row.Scan(&metaJSON); err != nil {
		return fmt.Errorf("%w: relstore: project %s: %v", domain.ErrNotFound, id, err)
	}

	meta, err := unmarshalMetadata(metaJSON)
	if err != nil {
		return err
	}
	fn(&meta)

	newJSON, err := marshalMetadata(meta)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE projects SET metadata = $1, updated_at = now() WHERE id = $2`, newJSON, id); err != nil {
		return fmt.Errorf("%w: relstore: write metadata: %v", domain.ErrUpstreamTransient, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: relstore: commit metadata tx: %v", domain.ErrUpstreamTransient, err)
	}
	return nil
}

// EnsureFile inserts a File row for (project_id, blob_key) if none exists,
// otherwise returns the existing row. created reports whether a new row was
// inserted, so callers can decide whether to re-run PDF extraction.
func (s *Store) EnsureFile(ctx context.Context, id, projectID, filename, blobKey string) (file domain.File, created bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, filename, blob_key, content, created_at
		FROM files WHERE project_id = $1 AND blob_key = $2`, projectID, blobKey)

	var f domain.File
	scanErr := row.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.BlobKey, &f.Content, &f.CreatedAt)
	if scanErr == nil {
		return f, false, nil
	}

	insertRow := s.pool.QueryRow(ctx, `
		INSERT INTO files (id, project_id, filename, blob_key, content)
		VALUES ($1, $2, $3, $4, '')
		RETURNING id, project_id, filename, blob_key, content, created_at`,
		id, projectID, filename, blobKey)
	if err := insertRow.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.BlobKey, &f.Content, &f.CreatedAt); err != nil {
		return domain.File{}, false, fmt.Errorf("%w: relstore: ensure file: %v", domain.ErrUpstreamTransient, err)
	}
	return f, true, nil
}

// UpdateFileContent sets File.content. Per spec.md's monotonicity
// invariant, callers must never pass a shorter string than what's stored;
// this is enforced by IngestionProcessor, not here.
func (s *Store) UpdateFileContent(ctx context.Context, fileID, content string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE files SET content = $1 WHERE id = $2`, content, fileID)
	if err != nil {
		return fmt.Errorf("%w: relstore: update file content: %v", domain.ErrUpstreamTransient, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: relstore: file %s", domain.ErrNotFound, fileID)
	}
	return nil
}

// ListFilesByProject returns every File row for a project, ordered by
// creation time, used by ExportProcessor to rebuild a document cache from
// stored content rather than re-running PDF extraction.
func (s *Store) ListFilesByProject(ctx context.Context, projectID string) ([]domain.File, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, filename, blob_key, content, created_at
		FROM files WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: relstore: list files: %v", domain.ErrUpstreamTransient, err)
	}
	defer rows.Close()

	var files []domain.File
	for rows.Next() {
		var f domain.File
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.BlobKey, &f.Content, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: relstore: scan file: %v", domain.ErrUpstreamTransient, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: relstore: iterate files: %v", domain.ErrUpstreamTransient, err)
	}
	return files, nil
}

// GetFile fetches a File by id.
func (s *Store) GetFile(ctx context.Context, id string) (domain.File, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, filename, blob_key, content, created_at
		FROM files WHERE id = $1`, id)
	var f domain.File
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Filename, &f.BlobKey, &f.Content, &f.CreatedAt); err != nil {
		return domain.File{}, fmt.Errorf("%w: relstore: file %s: %v", domain.ErrNotFound, id, err)
	}
	return f, nil
}

// InsertChunks appends Chunk rows for a file. Chunks are append-only per
// file version (spec.md §3); re-ingestion policy for stale chunks is the
// caller's concern.
func (s *Store) InsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := make([][]any, len(chunks))
	for i, c := range chunks {
		headersJSON, err := json.Marshal(c.Metadata.Headers)
		if err != nil {
			return fmt.Errorf("relstore: marshal chunk headers: %w", err)
		}
		batch[i] = []any{c.ID, c.FileID, c.Content, toFloat64Slice(c.Embedding), headersJSON}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: relstore: begin chunk insert tx: %v", domain.ErrUpstreamTransient, err)
	}
	defer tx.Rollback(ctx)

	for _, row := range batch {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunks (id, file_id, content, embedding, headers)
			VALUES ($1, $2, $3, $4, $5)`, row...); err != nil {
			return fmt.Errorf("%w: relstore: insert chunk: %v", domain.ErrUpstreamTransient, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: relstore: commit chunk insert: %v", domain.ErrUpstreamTransient, err)
	}
	return nil
}

// ListChunksByProject returns every chunk belonging to any file in a
// project.
func (s *Store) ListChunksByProject(ctx context.Context, projectID string) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.file_id, c.content, c.embedding, c.headers, c.created_at
		FROM chunks c JOIN files f ON f.id = c.file_id
		WHERE f.project_id = $1
		ORDER BY c.created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: relstore: list chunks: %v", domain.ErrUpstreamTransient, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var embedding []float64
		var headersJSON []byte
		if err := rows.Scan(&c.ID, &c.FileID, &c.Content, &embedding, &headersJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: relstore: scan chunk: %v", domain.ErrUpstreamTransient, err)
		}
		c.Embedding = toFloat32Slice(embedding)
		_ = json.Unmarshal(headersJSON, &c.Metadata.Headers)
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: relstore: iterate chunks: %v", domain.ErrUpstreamTransient, err)
	}
	return chunks, nil
}

func marshalMetadata(m domain.ProjectMetadata) ([]byte, error) {
	flat := map[string]any{}
	for k, v := range m.Extra {
		flat[k] = v
	}
	if m.GeminiCacheName != "" {
		flat["gemini_cache_name"] = m.GeminiCacheName
	}
	if m.Export != nil {
		flat["export"] = m.Export
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("relstore: marshal project_metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (domain.ProjectMetadata, error) {
	if len(data) == 0 {
		return domain.ProjectMetadata{}, nil
	}
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return domain.ProjectMetadata{}, fmt.Errorf("relstore: unmarshal project_metadata: %w", err)
	}

	var meta domain.ProjectMetadata
	meta.Extra = make(map[string]any)
	for k, raw := range flat {
		switch k {
		case "gemini_cache_name":
			_ = json.Unmarshal(raw, &meta.GeminiCacheName)
		case "export":
			var state domain.ExportState
			if err := json.Unmarshal(raw, &state); err == nil {
				meta.Export = &state
			}
		default:
			var v any
			_ = json.Unmarshal(raw, &v)
			meta.Extra[k] = v
		}
	}
	return meta, nil
}

func toFloat64Slice(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func toFloat32Slice(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

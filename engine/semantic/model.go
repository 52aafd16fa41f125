// Package semantic is the Qdrant-backed ANN mirror index: chunk embeddings
// are upserted here alongside the relational store so NoteService can run
// approximate similarity search without touching Postgres for every query.
package semantic

// ChunkPoint is one chunk embedding to upsert, tagged with its project for
// per-project filtering and with its file for per-file deletion.
type ChunkPoint struct {
	ChunkID   string
	FileID    string
	ProjectID string
	Content   string
	Embedding []float32
}

// ChunkHit is a single similarity search result, trimmed to what RAG context
// assembly needs.
type ChunkHit struct {
	ChunkID string
	Score   float32
	Content string
	FileID  string
}

package vectorstore

import "time"

// Document is one embedded text chunk stored in the vector store.
// Many documents may share a SourceID (one source file is chunked into
// several documents).
type Document struct {
	ID        string            `json:"id"`
	SourceID  string            `json:"source_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding"`
	CreatedAt time.Time         `json:"created_at"`
}

// ScoredDocument is a Document with its cosine similarity to a query vector.
type ScoredDocument struct {
	Document
	Score float32
}

// Package indexer chunks reference documents, embeds the chunks, and stores
// them in the vector store; at query time it retrieves the nearest chunks
// and assembles a grounding context string for LLM prompts.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/perfdesk/perfai/internal/vectorstore"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Indexer writes chunked, embedded documents into the vector store.
type Indexer struct {
	embedder Embedder
	store    *vectorstore.Store
	logger   *slog.Logger
}

// New creates an Indexer with the given embedder and store.
func New(embedder Embedder, store *vectorstore.Store) *Indexer {
	return &Indexer{embedder: embedder, store: store, logger: slog.Default()}
}

// Source describes one document to index.
type Source struct {
	ID       string            // identifier shared by all chunks of this document
	Text     string            // extracted plain text
	Metadata map[string]string // free-form descriptive fields (fileName, type, department)
}

// Index chunks the source text, embeds every chunk, and appends the
// resulting documents to the store. Returns the number of chunks indexed.
func (ix *Indexer) Index(ctx context.Context, src Source) (int, error) {
	chunks := Chunk(src.Text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("source %s has no indexable text", src.ID)
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}

	now := time.Now().UTC()
	docs := make([]vectorstore.Document, len(chunks))
	for i, chunk := range chunks {
		meta := make(map[string]string, len(src.Metadata)+1)
		for k, v := range src.Metadata {
			meta[k] = v
		}
		meta["preview"] = preview(chunk)

		docs[i] = vectorstore.Document{
			ID:        uuid.New().String(),
			SourceID:  src.ID,
			Content:   chunk,
			Metadata:  meta,
			Embedding: vecs[i],
			CreatedAt: now,
		}
	}

	if err := ix.store.Add(docs); err != nil {
		return 0, fmt.Errorf("storing documents: %w", err)
	}

	ix.logger.Info("indexed document", "source_id", src.ID, "chunks", len(docs))
	return len(docs), nil
}

// preview returns a short leading excerpt used as chunk metadata.
func preview(s string) string {
	const n = 120
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

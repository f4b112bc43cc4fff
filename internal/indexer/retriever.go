package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/perfdesk/perfai/internal/vectorstore"
)

const defaultMaxContextTokens = 4000

// Retriever embeds a query and assembles relevant stored chunks into a
// grounding context string.
type Retriever struct {
	embedder Embedder
	store    *vectorstore.Store

	// MaxContextTokens bounds the size of the assembled context.
	MaxContextTokens int
}

// NewRetriever creates a Retriever over the given embedder and store.
func NewRetriever(embedder Embedder, store *vectorstore.Store) *Retriever {
	return &Retriever{
		embedder:         embedder,
		store:            store,
		MaxContextTokens: defaultMaxContextTokens,
	}
}

// Retrieve embeds the query and returns the top-K most similar documents.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.ScoredDocument, error) {
	if topK <= 0 {
		topK = 5
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.store.Search(vec, topK), nil
}

// Context retrieves the top-K chunks for the query and concatenates them
// into a single grounding string, highest score first, dropping chunks that
// would exceed the token budget.
func (r *Retriever) Context(ctx context.Context, query string, topK int) (string, error) {
	docs, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("[Reference Material]\n")
	remaining := r.MaxContextTokens - estimateTokens(sb.String())

	// Search results are already score-descending.
	for _, d := range docs {
		entry := formatDocument(d)
		tokens := estimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}

	return sb.String(), nil
}

func formatDocument(d vectorstore.ScoredDocument) string {
	name := d.Metadata["fileName"]
	if name == "" {
		name = d.SourceID
	}
	return fmt.Sprintf("(Score: %.2f, Source: %s)\n%s\n\n", d.Score, name, d.Content)
}

// estimateTokens uses the rough 4-chars-per-token heuristic.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

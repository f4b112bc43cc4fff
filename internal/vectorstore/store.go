// Package vectorstore implements a small file-backed vector collection with
// brute-force cosine similarity search. The whole collection is one JSON
// array on disk, rewritten atomically on every append. This is deliberately
// simple: the store indexes reference documents for prompt grounding, not
// primary data, and stays small enough that a linear scan is fine.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const storeFileName = "vector-store.json"

// ErrDimensionMismatch is returned by Add when a document's embedding length
// disagrees with the rest of the batch or with the persisted collection.
// Mixing embedding models silently breaks every similarity comparison, so
// mismatches are rejected at index time.
var ErrDimensionMismatch = errors.New("embedding dimensionality mismatch")

// Store owns one on-disk JSON file and its in-memory mirror. All writes
// serialize through a single mutex; each Add reloads from disk first so
// appends from other process instances are not lost.
type Store struct {
	path string

	mu   sync.Mutex
	docs []Document
}

// Open creates (if needed) dataDir and loads the persisted collection.
// A missing or malformed store file is treated as an empty store.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s := &Store{path: filepath.Join(dataDir, storeFileName)}
	s.docs = loadFile(s.path)
	return s, nil
}

// loadFile reads the persisted JSON array. Corrupt or non-array content
// yields an empty collection rather than an error, favoring availability.
func loadFile(path string) []Document {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil
	}
	return docs
}

// Add appends documents to the store and persists the full collection.
// Concurrent callers are serialized; each call reloads the file, appends,
// and rewrites it atomically, so no concurrent append through this instance
// is lost. The batch must be non-empty and dimensionally consistent.
func (s *Store) Add(docs []Document) error {
	if len(docs) == 0 {
		return errors.New("no documents to add")
	}

	dim := len(docs[0].Embedding)
	for _, d := range docs {
		if len(d.Embedding) != dim {
			return fmt.Errorf("%w: document %s has %d dimensions, batch has %d",
				ErrDimensionMismatch, d.ID, len(d.Embedding), dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Pick up writes from other process instances sharing the file.
	s.docs = loadFile(s.path)

	if len(s.docs) > 0 && len(s.docs[0].Embedding) != dim {
		return fmt.Errorf("%w: store has %d dimensions, batch has %d",
			ErrDimensionMismatch, len(s.docs[0].Embedding), dim)
	}

	s.docs = append(s.docs, docs...)
	if err := s.persist(); err != nil {
		return fmt.Errorf("persisting vector store: %w", err)
	}
	return nil
}

// persist rewrites the whole collection as one JSON array via a temp file
// and rename, so readers never observe a partial write.
func (s *Store) persist() error {
	data, err := json.Marshal(s.docs)
	if err != nil {
		return fmt.Errorf("marshalling documents: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing store file: %w", err)
	}
	return nil
}

// Search scans every stored document, scoring it against the query vector by
// cosine similarity, and returns the top limit documents in descending score
// order. An empty store returns nil. Tie-breaking among equal scores is
// unspecified.
func (s *Store) Search(query []float32, limit int) []ScoredDocument {
	s.mu.Lock()
	docs := s.docs
	s.mu.Unlock()

	if len(docs) == 0 || limit <= 0 {
		return nil
	}

	queryNorm := norm(query)

	scored := make([]ScoredDocument, 0, len(docs))
	for _, d := range docs {
		scored = append(scored, ScoredDocument{
			Document: d,
			Score:    cosine(query, d.Embedding, queryNorm),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if limit < len(scored) {
		scored = scored[:limit]
	}
	return scored
}

// Count returns the number of stored documents.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Clear removes every document and deletes the store file. Per-document
// deletion is not supported; the store is append-only.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing store file: %w", err)
	}
	return nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes cosine similarity as dot(a,b) / (|a|·|b|).
// A zero-magnitude vector on either side yields 0 rather than dividing by
// zero; mismatched lengths also score 0.
func cosine(a, b []float32, aNorm float64) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	return float32(dot / (aNorm * bNorm))
}

package vectorstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, dir
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func testDoc(id string, embedding []float32) Document {
	return Document{
		ID:        id,
		SourceID:  "src-" + id,
		Content:   "chunk " + id,
		Metadata:  map[string]string{"fileName": "notes.md"},
		Embedding: embedding,
		CreatedAt: time.Now().UTC(),
	}
}

func TestAddAndSearch(t *testing.T) {
	s, _ := openTestStore(t)

	vec := makeTestVector(64, 0.1)
	if err := s.Add([]Document{testDoc("d1", vec)}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results := s.Search(vec, 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != "d1" {
		t.Errorf("ID = %q, want %q", results[0].ID, "d1")
	}
	if results[0].Score < 0.999 {
		t.Errorf("self-similarity = %f, want ~1", results[0].Score)
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s, _ := openTestStore(t)
	if got := s.Search(makeTestVector(8, 0.5), 5); len(got) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(got))
	}
}

func TestSearch_SortedDescending(t *testing.T) {
	s, _ := openTestStore(t)

	var docs []Document
	for i := 0; i < 10; i++ {
		docs = append(docs, testDoc(fmt.Sprintf("d%d", i), makeTestVector(64, float32(i)*0.05)))
	}
	if err := s.Add(docs); err != nil {
		t.Fatalf("Add: %v", err)
	}

	results := s.Search(makeTestVector(64, 0.12), 5)
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted: score[%d]=%f > score[%d]=%f",
				i, results[i].Score, i-1, results[i-1].Score)
		}
	}
}

func TestCosine_Properties(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	neg := []float32{-1, -2, -3, -4}

	if got := cosine(v, v, norm(v)); got < 0.9999 {
		t.Errorf("cosine(v, v) = %f, want 1", got)
	}
	if got := cosine(v, neg, norm(v)); got > -0.9999 {
		t.Errorf("cosine(v, -v) = %f, want -1", got)
	}

	zero := []float32{0, 0, 0, 0}
	if got := cosine(zero, v, norm(zero)); got != 0 {
		t.Errorf("cosine(0, v) = %f, want 0", got)
	}
	if got := cosine(v, zero, norm(v)); got != 0 {
		t.Errorf("cosine(v, 0) = %f, want 0", got)
	}
}

func TestRoundTrip(t *testing.T) {
	s, dir := openTestStore(t)

	want := []Document{
		testDoc("a", makeTestVector(16, 0.1)),
		testDoc("b", makeTestVector(16, 0.2)),
	}
	if err := s.Add(want); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// A fresh instance pointed at the same file sees the same documents.
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if got := reopened.Count(); got != 2 {
		t.Fatalf("reopened count = %d, want 2", got)
	}

	results := reopened.Search(want[0].Embedding, 1)
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("reopened search returned %+v, want doc a", results)
	}
	if results[0].Content != "chunk a" {
		t.Errorf("Content = %q, want %q", results[0].Content, "chunk a")
	}
	if results[0].Metadata["fileName"] != "notes.md" {
		t.Errorf("Metadata lost in round trip: %v", results[0].Metadata)
	}
}

func TestConcurrentAdds(t *testing.T) {
	s, dir := openTestStore(t)

	batchA := []Document{
		testDoc("a1", makeTestVector(8, 0.1)),
		testDoc("a2", makeTestVector(8, 0.2)),
		testDoc("a3", makeTestVector(8, 0.3)),
	}
	batchB := []Document{
		testDoc("b1", makeTestVector(8, 0.4)),
		testDoc("b2", makeTestVector(8, 0.5)),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- s.Add(batchA)
	}()
	go func() {
		defer wg.Done()
		errs <- s.Add(batchB)
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Add: %v", err)
		}
	}

	if got := s.Count(); got != 5 {
		t.Errorf("in-memory count = %d, want 5", got)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if got := reopened.Count(); got != 5 {
		t.Errorf("persisted count = %d, want 5", got)
	}
}

func TestAdd_DimensionMismatch(t *testing.T) {
	s, _ := openTestStore(t)

	if err := s.Add([]Document{testDoc("d1", makeTestVector(16, 0.1))}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := s.Add([]Document{testDoc("d2", makeTestVector(32, 0.1))})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("err = %v, want ErrDimensionMismatch", err)
	}

	err = s.Add([]Document{
		testDoc("d3", makeTestVector(16, 0.1)),
		testDoc("d4", makeTestVector(8, 0.1)),
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mixed batch err = %v, want ErrDimensionMismatch", err)
	}
}

func TestAdd_Empty(t *testing.T) {
	s, _ := openTestStore(t)
	if err := s.Add(nil); err == nil {
		t.Error("Add(nil) succeeded, want error")
	}
}

func TestCorruptFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, storeFileName)
	if err := os.WriteFile(path, []byte(`{"not":"an array"`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open on corrupt file: %v", err)
	}
	if got := s.Count(); got != 0 {
		t.Errorf("count = %d, want 0 for corrupt file", got)
	}

	// The store stays usable.
	if err := s.Add([]Document{testDoc("d1", makeTestVector(8, 0.1))}); err != nil {
		t.Fatalf("Add after corrupt load: %v", err)
	}
}

func TestClear(t *testing.T) {
	s, dir := openTestStore(t)
	if err := s.Add([]Document{testDoc("d1", makeTestVector(8, 0.1))}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := s.Count(); got != 0 {
		t.Errorf("count after Clear = %d, want 0", got)
	}
	if _, err := os.Stat(filepath.Join(dir, storeFileName)); !os.IsNotExist(err) {
		t.Errorf("store file still present after Clear")
	}
}

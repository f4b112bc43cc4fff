package orchestrator

import "sync"

// RecordSink receives completed call records for durable persistence
// (the SQLite audit store implements this). A nil sink disables it.
type RecordSink interface {
	InsertCallRecord(rec CallRecord) error
}

// history is the bounded in-memory list of completed call records, oldest
// first. When the bound is reached the oldest records are dropped.
type history struct {
	mu      sync.Mutex
	records []CallRecord
	max     int
}

func newHistory(max int) *history {
	return &history{max: max}
}

func (h *history) append(rec CallRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if h.max > 0 && len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
}

// snapshot returns a copy of the current records.
func (h *history) snapshot() []CallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]CallRecord, len(h.records))
	copy(out, h.records)
	return out
}

func (h *history) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}

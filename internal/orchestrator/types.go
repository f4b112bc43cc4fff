package orchestrator

import (
	"context"
	"time"
)

// Call statuses recorded in the history. pending is transient; the other
// three are terminal.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// CallOptions tune a single invocation.
type CallOptions struct {
	// BypassCache skips both the cache read and the cache write.
	BypassCache bool `json:"bypassCache,omitempty"`
	// Priority is advisory only; it is recorded but does not affect
	// scheduling.
	Priority string `json:"priority,omitempty"`
	// UserID is attached to the call record for auditing.
	UserID string `json:"userId,omitempty"`
}

// CallRequest names a service method and carries its arguments. Params
// containing a "prompt" key are dispatched to the configured LLM backend
// instead of a registered service.
type CallRequest struct {
	Service string         `json:"service"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	Options CallOptions    `json:"options"`
}

// Response is the uniform envelope every call returns. It is always
// returned, never an error value; callers branch on Success.
type Response struct {
	Success  bool   `json:"success"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	Cached   bool   `json:"cached"`
	Duration int64  `json:"duration"` // milliseconds
	CallID   string `json:"callId"`
}

// CallRecord is the audit trail entry for one invocation. Params are
// sanitized (secrets stripped, long text truncated) and are observational
// only. Records are never mutated after they are appended.
type CallRecord struct {
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	Method    string         `json:"method"`
	Params    map[string]any `json:"params,omitempty"`
	UserID    string         `json:"userId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Duration  int64          `json:"duration"` // milliseconds
	Error     string         `json:"error,omitempty"`
	Cached    bool           `json:"cached"`
}

// Caller is the narrow interface domain services use to issue nested calls
// back through the orchestrator (typically prompt-shaped LLM calls).
type Caller interface {
	Call(ctx context.Context, req CallRequest) Response
}

// Service is one named AI service behind the registry.
type Service interface {
	Invoke(ctx context.Context, method string, params map[string]any) (any, error)
}

// Factory constructs a service on first use. The Caller back-reference lets
// domain services issue nested orchestrator calls; this forms a two-level
// call graph (service → orchestrator → LLM backend), not a cycle.
type Factory func(c Caller) (Service, error)

// Metrics summarizes the recorded call history.
type Metrics struct {
	TotalCalls    int            `json:"totalCalls"`
	Successes     int            `json:"successes"`
	Failures      int            `json:"failures"`
	Timeouts      int            `json:"timeouts"`
	CacheHits     int            `json:"cacheHits"`
	AvgDurationMS float64        `json:"avgDurationMs"`
	PerService    map[string]int `json:"perService"`
}

package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// CallRow is one persisted service call. The JSON shape mirrors the
// orchestrator's in-memory call records so API consumers see one format.
type CallRow struct {
	ID        string    `json:"id"`
	Service   string    `json:"service"`
	Method    string    `json:"method"`
	Params    string    `json:"params,omitempty"` // JSON object stored as text
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Duration  int64     `json:"duration"` // milliseconds
	Error     string    `json:"error,omitempty"`
	Cached    bool      `json:"cached"`
}

// CallFilter narrows ListCalls. Zero values mean "no constraint".
type CallFilter struct {
	Service string
	Status  string
	Since   time.Time
	Limit   int
}

// ServiceStats aggregates persisted calls per service.
type ServiceStats struct {
	Service       string
	Calls         int
	Failures      int
	AvgDurationMS float64
}

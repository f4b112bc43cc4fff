// Package api exposes the orchestrator and the knowledge base over HTTP
// and MCP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/perfdesk/perfai/internal/extract"
	"github.com/perfdesk/perfai/internal/indexer"
	"github.com/perfdesk/perfai/internal/orchestrator"
	"github.com/perfdesk/perfai/internal/storage"
	"github.com/perfdesk/perfai/internal/vectorstore"
)

const maxRequestBodySize = 1 << 20   // 1MB
const maxDocumentBodySize = 10 << 20 // 10MB

// DocumentIndexer abstracts document ingestion for the API layer.
type DocumentIndexer interface {
	Index(ctx context.Context, src indexer.Source) (int, error)
}

// ContextRetriever abstracts semantic search for the API layer.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]vectorstore.ScoredDocument, error)
}

// CallLister abstracts the persisted audit trail; nil means in-memory
// history only.
type CallLister interface {
	ListCalls(f storage.CallFilter) ([]storage.CallRow, error)
	StatsByService() ([]storage.ServiceStats, error)
}

type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Indexer      DocumentIndexer
	Retriever    ContextRetriever
	Calls        CallLister // optional
	Token        string
}

// NewHandler returns the perfai REST API. The health endpoint is open;
// everything under /v1 requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/services/call", handleServiceCall(deps))
		r.Post("/documents", handleIndexDocument(deps))
		r.Get("/search", handleSearch(deps))
		r.Get("/calls", handleListCalls(deps))
		r.Get("/metrics", handleMetrics(deps))
		r.Delete("/cache", handleClearCache(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type serviceCallRequest struct {
	Service string                   `json:"service"`
	Method  string                   `json:"method"`
	Params  map[string]any           `json:"params"`
	Options orchestrator.CallOptions `json:"options"`
}

func handleServiceCall(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req serviceCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Service == "" || req.Method == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "service and method are required")
			return
		}

		resp := deps.Orchestrator.Call(r.Context(), orchestrator.CallRequest{
			Service: req.Service,
			Method:  req.Method,
			Params:  req.Params,
			Options: req.Options,
		})

		// Call failures ride in the envelope; the HTTP layer stays 200.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type indexDocumentRequest struct {
	SourceID string            `json:"sourceId"`
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Encoding string            `json:"encoding"` // "" or "base64"
	MimeType string            `json:"mimeType"`
	Metadata map[string]string `json:"metadata"`
}

func handleIndexDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBodySize)
		defer r.Body.Close()

		var req indexDocumentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}

		raw := []byte(req.Content)
		if req.Encoding == "base64" {
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			raw = decoded
		}

		text, err := extract.Text(raw, req.MimeType)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "extraction_error", "extracting text: %v", err)
			return
		}

		if req.SourceID == "" {
			req.SourceID = uuid.New().String()
		}
		metadata := req.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		if req.Title != "" {
			metadata["title"] = req.Title
		}

		chunks, err := deps.Indexer.Index(r.Context(), indexer.Source{
			ID:       req.SourceID,
			Text:     text,
			Metadata: metadata,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "indexing document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"sourceId": req.SourceID,
			"chunks":   chunks,
		})
	}
}

type searchResult struct {
	ID       string            `json:"id"`
	SourceID string            `json:"sourceId"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 5, 50)

		docs, err := deps.Retriever.Retrieve(r.Context(), query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}

		results := make([]searchResult, len(docs))
		for i, d := range docs {
			results[i] = searchResult{
				ID:       d.ID,
				SourceID: d.SourceID,
				Content:  d.Content,
				Score:    d.Score,
				Metadata: d.Metadata,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}

func handleListCalls(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		// Prefer the persisted trail when a store is wired in.
		if deps.Calls != nil {
			filter := storage.CallFilter{
				Service: r.URL.Query().Get("service"),
				Status:  r.URL.Query().Get("status"),
				Limit:   limit,
			}
			if since := r.URL.Query().Get("since"); since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid since: %v", err)
					return
				}
				filter.Since = t
			}

			rows, err := deps.Calls.ListCalls(filter)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "listing calls: %v", err)
				return
			}
			if rows == nil {
				rows = []storage.CallRow{}
			}
			writeJSON(w, rows)
			return
		}

		records := deps.Orchestrator.History()
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
		writeJSON(w, records)
	}
}

func handleMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"orchestrator": deps.Orchestrator.Metrics(),
		}
		if deps.Calls != nil {
			stats, err := deps.Calls.StatsByService()
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "aggregating calls: %v", err)
				return
			}
			payload["persisted"] = stats
		}
		writeJSON(w, payload)
	}
}

func handleClearCache(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Orchestrator.ClearCache()
		writeJSON(w, map[string]string{"status": "cleared"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

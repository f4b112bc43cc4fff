package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/perfdesk/perfai/internal/orchestrator"
	"github.com/perfdesk/perfai/internal/vectorstore"
)

// --- mocks ---

type mockMCPCaller struct {
	requests []orchestrator.CallRequest
	resp     orchestrator.Response
}

func (m *mockMCPCaller) Call(_ context.Context, req orchestrator.CallRequest) orchestrator.Response {
	m.requests = append(m.requests, req)
	return m.resp
}

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_SearchContext(t *testing.T) {
	deps := MCPDeps{
		Caller: &mockMCPCaller{},
		Retriever: &stubRetriever{docs: []vectorstore.ScoredDocument{
			{Document: vectorstore.Document{ID: "d1", Content: "retention targets"}, Score: 0.92},
		}},
	}
	handler := mcpSearchContext(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_context", map[string]any{
		"query": "retention",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var results []searchResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(results) != 1 || results[0].ID != "d1" {
		t.Errorf("results = %+v", results)
	}
}

func TestMCPTool_SearchContext_MissingQuery(t *testing.T) {
	deps := MCPDeps{Caller: &mockMCPCaller{}, Retriever: &stubRetriever{}}
	handler := mcpSearchContext(deps)

	result, err := handler(context.Background(), makeCallToolRequest("search_context", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing query")
	}
}

func TestMCPTool_ValidateKPI(t *testing.T) {
	caller := &mockMCPCaller{resp: orchestrator.Response{
		Success: true,
		Data:    map[string]any{"overall": 85},
	}}
	handler := mcpValidateKPI(MCPDeps{Caller: caller})

	result, err := handler(context.Background(), makeCallToolRequest("validate_kpi", map[string]any{
		"title":  "Increase retention to 95%",
		"target": 95.0,
		"unit":   "%",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	if len(caller.requests) != 1 {
		t.Fatalf("orchestrator calls = %d, want 1", len(caller.requests))
	}
	req := caller.requests[0]
	if req.Service != "smart-validator" || req.Method != "validate" {
		t.Errorf("routed to %s.%s", req.Service, req.Method)
	}
	if req.Params["title"] != "Increase retention to 95%" {
		t.Errorf("params = %v", req.Params)
	}
}

func TestMCPTool_DetectAnomalies(t *testing.T) {
	caller := &mockMCPCaller{resp: orchestrator.Response{Success: true, Data: map[string]any{"anomalous": true}}}
	handler := mcpDetectAnomalies(MCPDeps{Caller: caller})

	result, err := handler(context.Background(), makeCallToolRequest("detect_anomalies", map[string]any{
		"history": []any{100.0, 101.0, 99.0},
		"actual":  400.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	req := caller.requests[0]
	if req.Service != "anomaly-detector" || req.Method != "detect" {
		t.Errorf("routed to %s.%s", req.Service, req.Method)
	}
	if req.Params["actual"] != 400.0 {
		t.Errorf("params = %v", req.Params)
	}
}

func TestMCPTool_DetectAnomalies_MissingHistory(t *testing.T) {
	handler := mcpDetectAnomalies(MCPDeps{Caller: &mockMCPCaller{}})

	result, err := handler(context.Background(), makeCallToolRequest("detect_anomalies", map[string]any{
		"actual": 400.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing history")
	}
}

func TestMCPTool_SuggestKPIs(t *testing.T) {
	caller := &mockMCPCaller{resp: orchestrator.Response{Success: true, Data: []any{map[string]any{"title": "NRR"}}}}
	handler := mcpSuggestKPIs(MCPDeps{Caller: caller})

	result, err := handler(context.Background(), makeCallToolRequest("suggest_kpis", map[string]any{
		"role":       "Sales Manager",
		"department": "Sales",
		"count":      3.0,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	req := caller.requests[0]
	if req.Service != "kpi-suggester" || req.Method != "suggest" {
		t.Errorf("routed to %s.%s", req.Service, req.Method)
	}
	if req.Params["role"] != "Sales Manager" || req.Params["count"] != 3 {
		t.Errorf("params = %v", req.Params)
	}
}

func TestMCPTool_OrchestratorFailureBecomesToolError(t *testing.T) {
	caller := &mockMCPCaller{resp: orchestrator.Response{Success: false, Error: "rate limit exceeded"}}
	handler := mcpValidateKPI(MCPDeps{Caller: caller})

	result, err := handler(context.Background(), makeCallToolRequest("validate_kpi", map[string]any{
		"title": "Churn",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	if toolText(t, result) != "rate limit exceeded" {
		t.Errorf("message = %q", toolText(t, result))
	}
}

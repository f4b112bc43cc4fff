package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/perfdesk/perfai/internal/orchestrator"
)

// MCPCaller abstracts the orchestrator for the MCP layer.
type MCPCaller interface {
	Call(ctx context.Context, req orchestrator.CallRequest) orchestrator.Response
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Caller    MCPCaller
	Retriever ContextRetriever
}

// NewMCPServer creates an MCP server exposing the KPI assistant tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"perfai",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("perfai — KPI assistant: SMART validation, anomaly detection, and reference-grounded KPI suggestions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_context",
			mcp.WithDescription("Semantically search the KPI reference material and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpSearchContext(deps),
	)

	s.AddTool(
		mcp.NewTool("validate_kpi",
			mcp.WithDescription("Score a KPI definition against the SMART rubric."),
			mcp.WithString("title", mcp.Description("KPI title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("KPI description")),
			mcp.WithNumber("target", mcp.Description("Numeric target value")),
			mcp.WithString("unit", mcp.Description("Unit of measurement, e.g. %")),
			mcp.WithNumber("baseline", mcp.Description("Current baseline value")),
			mcp.WithString("deadline", mcp.Description("Deadline as an RFC 3339 date")),
		),
		mcpValidateKPI(deps),
	)

	s.AddTool(
		mcp.NewTool("detect_anomalies",
			mcp.WithDescription("Check a submitted KPI actual against its history for statistical anomalies."),
			mcp.WithArray("history", mcp.Description("Historical actual values"), mcp.Required()),
			mcp.WithNumber("actual", mcp.Description("The newly submitted value"), mcp.Required()),
		),
		mcpDetectAnomalies(deps),
	)

	s.AddTool(
		mcp.NewTool("suggest_kpis",
			mcp.WithDescription("Suggest KPI definitions for a role, grounded on the indexed reference material."),
			mcp.WithString("role", mcp.Description("Job role, e.g. Sales Manager"), mcp.Required()),
			mcp.WithString("department", mcp.Description("Department name")),
			mcp.WithNumber("count", mcp.Description("Number of suggestions (default 5)")),
		),
		mcpSuggestKPIs(deps),
	)

	return s
}

func mcpSearchContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		docs, err := deps.Retriever.Retrieve(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(docs) == 0 {
			return mcpText("[]"), nil
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
		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpValidateKPI(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}

		params := map[string]any{
			"title":       title,
			"description": req.GetString("description", ""),
			"target":      req.GetFloat("target", 0),
			"unit":        req.GetString("unit", ""),
			"baseline":    req.GetFloat("baseline", 0),
			"deadline":    req.GetString("deadline", ""),
		}
		return mcpCall(ctx, deps.Caller, "smart-validator", "validate", params)
	}
}

func mcpDetectAnomalies(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		history, ok := req.GetArguments()["history"].([]any)
		if !ok {
			return mcpError("history is required and must be an array of numbers"), nil
		}
		actual, err := req.RequireFloat("actual")
		if err != nil {
			return mcpError("actual is required and must be a number"), nil
		}

		return mcpCall(ctx, deps.Caller, "anomaly-detector", "detect", map[string]any{
			"history": history,
			"actual":  actual,
		})
	}
}

func mcpSuggestKPIs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		role, err := req.RequireString("role")
		if err != nil {
			return mcpError("role is required"), nil
		}

		return mcpCall(ctx, deps.Caller, "kpi-suggester", "suggest", map[string]any{
			"role":       role,
			"department": req.GetString("department", ""),
			"count":      req.GetInt("count", 5),
		})
	}
}

// mcpCall routes a tool invocation through the orchestrator and renders the
// envelope as a tool result.
func mcpCall(ctx context.Context, caller MCPCaller, service, method string, params map[string]any) (*mcp.CallToolResult, error) {
	resp := caller.Call(ctx, orchestrator.CallRequest{
		Service: service,
		Method:  method,
		Params:  params,
	})
	if !resp.Success {
		return mcpError(resp.Error), nil
	}

	b, err := json.Marshal(resp.Data)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

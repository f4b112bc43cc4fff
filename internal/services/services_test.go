package services

import (
	"context"
	"strings"
	"testing"

	"github.com/perfdesk/perfai/internal/anomaly"
	"github.com/perfdesk/perfai/internal/indexer"
	"github.com/perfdesk/perfai/internal/orchestrator"
	"github.com/perfdesk/perfai/internal/smart"
	"github.com/perfdesk/perfai/internal/vectorstore"
)

// fakeCaller records nested calls and returns a canned response.
type fakeCaller struct {
	requests []orchestrator.CallRequest
	resp     orchestrator.Response
}

func (f *fakeCaller) Call(ctx context.Context, req orchestrator.CallRequest) orchestrator.Response {
	f.requests = append(f.requests, req)
	return f.resp
}

func TestSmartValidator_Validate(t *testing.T) {
	svc := NewSmartValidator(&fakeCaller{})

	result, err := svc.Invoke(context.Background(), "validate", map[string]any{
		"title":       "Increase customer retention rate to 95%",
		"description": "Measure monthly retention of active customers across all plans and raise it from the current baseline.",
		"target":      95,
		"unit":        "%",
		"baseline":    88,
		"deadline":    "2026-12-31",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	scores, ok := result.(smart.Scores)
	if !ok {
		t.Fatalf("result is %T, want smart.Scores", result)
	}
	if scores.Overall < 60 {
		t.Errorf("Overall = %d for a well-formed KPI", scores.Overall)
	}
}

func TestSmartValidator_ValidateRequiresTitle(t *testing.T) {
	svc := NewSmartValidator(&fakeCaller{})
	if _, err := svc.Invoke(context.Background(), "validate", map[string]any{"target": 10}); err == nil {
		t.Fatal("expected error for missing title")
	}
}

func TestSmartValidator_Improve(t *testing.T) {
	caller := &fakeCaller{resp: orchestrator.Response{
		Success: true,
		Data:    map[string]any{"title": "rewritten"},
	}}
	svc := NewSmartValidator(caller)

	result, err := svc.Invoke(context.Background(), "improve", map[string]any{
		"title": "improve stuff",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if len(caller.requests) != 1 {
		t.Fatalf("nested calls = %d, want 1", len(caller.requests))
	}
	prompt, _ := caller.requests[0].Params["prompt"].(string)
	if !strings.Contains(prompt, "improve stuff") {
		t.Errorf("prompt does not carry the KPI title: %q", prompt)
	}
	if !strings.Contains(prompt, "SMART") {
		t.Errorf("prompt does not name the rubric: %q", prompt)
	}

	out, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result is %T, want map", result)
	}
	if _, ok := out["scores"].(smart.Scores); !ok {
		t.Error("result missing rubric scores")
	}
	if out["improved"] == nil {
		t.Error("result missing improved definition")
	}
}

func TestSmartValidator_UnknownMethod(t *testing.T) {
	svc := NewSmartValidator(&fakeCaller{})
	if _, err := svc.Invoke(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestAnomalyDetector_FlagsOutlier(t *testing.T) {
	svc := NewAnomalyDetector()

	result, err := svc.Invoke(context.Background(), "detect", map[string]any{
		"history": []any{100.0, 102.0, 98.0, 101.0, 99.0, 100.0},
		"actual":  400.0,
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	report, ok := result.(anomaly.Report)
	if !ok {
		t.Fatalf("result is %T, want anomaly.Report", result)
	}
	if !report.Anomalous {
		t.Error("4x outlier not flagged")
	}
	if len(report.Findings) == 0 {
		t.Error("no findings for 4x outlier")
	}
}

func TestAnomalyDetector_RequiresActual(t *testing.T) {
	svc := NewAnomalyDetector()
	if _, err := svc.Invoke(context.Background(), "detect", map[string]any{"history": []any{1.0, 2.0}}); err == nil {
		t.Fatal("expected error for missing actual")
	}
}

func TestKPISuggester_Suggest(t *testing.T) {
	caller := &fakeCaller{resp: orchestrator.Response{Success: true, Data: "[]"}}
	svc := NewKPISuggester(caller, nil)

	if _, err := svc.Invoke(context.Background(), "suggest", map[string]any{
		"role":       "Sales Manager",
		"department": "Sales",
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if len(caller.requests) != 1 {
		t.Fatalf("nested calls = %d, want 1", len(caller.requests))
	}
	prompt, _ := caller.requests[0].Params["prompt"].(string)
	if !strings.Contains(prompt, "Sales Manager") {
		t.Errorf("prompt missing role: %q", prompt)
	}
	if !strings.Contains(prompt, "5") {
		t.Errorf("prompt missing default count: %q", prompt)
	}
}

func TestKPISuggester_GroundsOnStore(t *testing.T) {
	store, err := vectorstore.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Add([]vectorstore.Document{{
		ID:        "d1",
		Content:   "Net revenue retention is the canonical sales KPI.",
		Embedding: []float32{1, 0, 0},
	}}); err != nil {
		t.Fatal(err)
	}
	retriever := indexer.NewRetriever(unitEmbedder{}, store)

	caller := &fakeCaller{resp: orchestrator.Response{Success: true, Data: "[]"}}
	svc := NewKPISuggester(caller, retriever)

	if _, err := svc.Invoke(context.Background(), "suggest", map[string]any{"role": "Sales Manager"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	refContext, _ := caller.requests[0].Params["context"].(string)
	if !strings.Contains(refContext, "Net revenue retention") {
		t.Errorf("context not grounded on stored document: %q", refContext)
	}
}

func TestKPISuggester_RequiresRole(t *testing.T) {
	svc := NewKPISuggester(&fakeCaller{}, nil)
	if _, err := svc.Invoke(context.Background(), "suggest", map[string]any{}); err == nil {
		t.Fatal("expected error for missing role")
	}
}

func TestApprovalAssistant_Review(t *testing.T) {
	caller := &fakeCaller{resp: orchestrator.Response{Success: true, Data: map[string]any{"recommendation": "discuss"}}}
	svc := NewApprovalAssistant(caller)

	result, err := svc.Invoke(context.Background(), "review", map[string]any{
		"kpiTitle": "Monthly churn",
		"target":   2.0,
		"actual":   5.5,
		"unit":     "%",
		"history":  []any{2.1, 1.9, 2.3},
		"comment":  "one large account left",
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	prompt, _ := caller.requests[0].Params["prompt"].(string)
	for _, want := range []string{"Monthly churn", "5.5", "one large account left"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if result == nil {
		t.Error("nil result")
	}
}

func TestApprovalAssistant_PropagatesFailure(t *testing.T) {
	caller := &fakeCaller{resp: orchestrator.Response{Success: false, Error: "backend down"}}
	svc := NewApprovalAssistant(caller)

	_, err := svc.Invoke(context.Background(), "review", map[string]any{
		"kpiTitle": "Churn",
		"actual":   1.0,
	})
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("err = %v, want backend failure surfaced", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := Registry(nil)
	for _, name := range []string{"smart-validator", "anomaly-detector", "kpi-suggester", "approval-assistant"} {
		factory, ok := reg[name]
		if !ok {
			t.Errorf("registry missing %q", name)
			continue
		}
		svc, err := factory(&fakeCaller{})
		if err != nil {
			t.Errorf("factory %q: %v", name, err)
		}
		if svc == nil {
			t.Errorf("factory %q returned nil service", name)
		}
	}
}

// unitEmbedder embeds everything as the same unit vector so any stored
// document matches the query.
type unitEmbedder struct{}

func (unitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (unitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

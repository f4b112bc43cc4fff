package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/perfdesk/perfai/internal/indexer"
	"github.com/perfdesk/perfai/internal/orchestrator"
)

const defaultSuggestionCount = 5

// KPISuggester proposes KPI definitions for a role, grounded on reference
// material retrieved from the vector store.
type KPISuggester struct {
	caller    orchestrator.Caller
	retriever *indexer.Retriever
}

func NewKPISuggester(c orchestrator.Caller, r *indexer.Retriever) *KPISuggester {
	return &KPISuggester{caller: c, retriever: r}
}

type suggestParams struct {
	Role       string `json:"role"`
	Department string `json:"department"`
	Count      int    `json:"count"`
}

func (s *KPISuggester) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "suggest" {
		return nil, fmt.Errorf("kpi-suggester: unknown method %q", method)
	}

	var p suggestParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Role == "" {
		return nil, errors.New("kpi-suggester: role is required")
	}
	if p.Count <= 0 {
		p.Count = defaultSuggestionCount
	}

	query := p.Role
	if p.Department != "" {
		query = p.Department + " " + p.Role
	}

	// Retrieval failures degrade to an ungrounded suggestion rather than
	// failing the call; the store may simply be empty.
	refContext := ""
	if s.retriever != nil {
		if c, err := s.retriever.Context(ctx, "KPIs and performance metrics for "+query, 5); err == nil {
			refContext = c
		}
	}

	resp := s.caller.Call(ctx, orchestrator.CallRequest{
		Service: "kpi-suggester",
		Method:  "suggest.llm",
		Params: map[string]any{
			"prompt":      suggestPrompt(p),
			"context":     refContext,
			"temperature": 0.7,
		},
	})
	if !resp.Success {
		return nil, fmt.Errorf("kpi-suggester: suggestion call failed: %s", resp.Error)
	}
	return resp.Data, nil
}

func suggestPrompt(p suggestParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest %d key performance indicators for the role %q", p.Count, p.Role)
	if p.Department != "" {
		fmt.Fprintf(&b, " in the %s department", p.Department)
	}
	b.WriteString(".\nEach KPI must be specific, measurable, and have a numeric target with a unit.\n")
	b.WriteString("Respond with a JSON array of objects: {\"title\", \"description\", \"target\", \"unit\", \"frequency\"}.")
	return b.String()
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perfdesk/perfai/internal/orchestrator"
	"github.com/perfdesk/perfai/internal/smart"
)

// SmartValidator scores KPI definitions against the SMART rubric and, on
// request, asks the LLM backend for a rewritten definition.
type SmartValidator struct {
	caller orchestrator.Caller
	now    func() time.Time
}

func NewSmartValidator(c orchestrator.Caller) *SmartValidator {
	return &SmartValidator{caller: c, now: time.Now}
}

func (s *SmartValidator) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	switch method {
	case "validate":
		return s.validate(params)
	case "improve":
		return s.improve(ctx, params)
	default:
		return nil, fmt.Errorf("smart-validator: unknown method %q", method)
	}
}

func (s *SmartValidator) validate(params map[string]any) (any, error) {
	var kpi smart.KPI
	if err := decodeParams(params, &kpi); err != nil {
		return nil, err
	}
	if kpi.Title == "" {
		return nil, errors.New("smart-validator: title is required")
	}
	return smart.Score(kpi, s.now()), nil
}

// improve scores the KPI first, then asks the backend to rewrite it with
// the weak dimensions called out. The nested call goes back through the
// orchestrator so it is rate limited and recorded like any other.
func (s *SmartValidator) improve(ctx context.Context, params map[string]any) (any, error) {
	var kpi smart.KPI
	if err := decodeParams(params, &kpi); err != nil {
		return nil, err
	}
	if kpi.Title == "" {
		return nil, errors.New("smart-validator: title is required")
	}
	scores := smart.Score(kpi, s.now())

	resp := s.caller.Call(ctx, orchestrator.CallRequest{
		Service: "smart-validator",
		Method:  "improve.llm",
		Params: map[string]any{
			"prompt":      improvePrompt(kpi, scores),
			"temperature": 0.7,
		},
	})
	if !resp.Success {
		return nil, fmt.Errorf("smart-validator: improvement call failed: %s", resp.Error)
	}
	return map[string]any{
		"scores":   scores,
		"improved": resp.Data,
	}, nil
}

func improvePrompt(kpi smart.KPI, scores smart.Scores) string {
	var b strings.Builder
	b.WriteString("Rewrite the following KPI definition so it satisfies the SMART criteria.\n\n")
	fmt.Fprintf(&b, "Title: %s\nDescription: %s\nTarget: %g %s\nBaseline: %g\nDeadline: %s\n\n",
		kpi.Title, kpi.Description, kpi.Target, kpi.Unit, kpi.Baseline, kpi.Deadline)
	fmt.Fprintf(&b, "Current rubric scores: specific=%d measurable=%d achievable=%d relevant=%d timeBound=%d.\n",
		scores.Specific, scores.Measurable, scores.Achievable, scores.Relevant, scores.TimeBound)
	if len(scores.Suggestions) > 0 {
		b.WriteString("Address these issues:\n")
		for _, s := range scores.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nRespond with JSON: {\"title\", \"description\", \"target\", \"unit\", \"deadline\", \"rationale\"}.")
	return b.String()
}

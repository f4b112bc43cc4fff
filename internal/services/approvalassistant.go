package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/perfdesk/perfai/internal/orchestrator"
)

// ApprovalAssistant summarizes a KPI result submission for the approving
// manager: whether the target was met, how the value compares to history,
// and what the reviewer should look at.
type ApprovalAssistant struct {
	caller orchestrator.Caller
}

func NewApprovalAssistant(c orchestrator.Caller) *ApprovalAssistant {
	return &ApprovalAssistant{caller: c}
}

type reviewParams struct {
	KPITitle string    `json:"kpiTitle"`
	Target   float64   `json:"target"`
	Actual   *float64  `json:"actual"`
	Unit     string    `json:"unit"`
	History  []float64 `json:"history"`
	Comment  string    `json:"comment"`
}

func (s *ApprovalAssistant) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "review" {
		return nil, fmt.Errorf("approval-assistant: unknown method %q", method)
	}

	var p reviewParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.KPITitle == "" {
		return nil, errors.New("approval-assistant: kpiTitle is required")
	}
	if p.Actual == nil {
		return nil, errors.New("approval-assistant: actual is required")
	}

	resp := s.caller.Call(ctx, orchestrator.CallRequest{
		Service: "approval-assistant",
		Method:  "review.llm",
		Params: map[string]any{
			"prompt":      reviewPrompt(p),
			"temperature": 0.3,
		},
	})
	if !resp.Success {
		return nil, fmt.Errorf("approval-assistant: review call failed: %s", resp.Error)
	}
	return resp.Data, nil
}

func reviewPrompt(p reviewParams) string {
	var b strings.Builder
	b.WriteString("Review this KPI result submission for a manager deciding whether to approve it.\n\n")
	fmt.Fprintf(&b, "KPI: %s\nTarget: %g %s\nSubmitted actual: %g %s\n", p.KPITitle, p.Target, p.Unit, *p.Actual, p.Unit)
	if len(p.History) > 0 {
		fmt.Fprintf(&b, "Previous actuals: %v\n", p.History)
	}
	if p.Comment != "" {
		fmt.Fprintf(&b, "Submitter's comment: %s\n", p.Comment)
	}
	b.WriteString("\nRespond with JSON: {\"summary\", \"targetMet\", \"concerns\", \"recommendation\"} ")
	b.WriteString("where recommendation is one of approve, discuss, reject.")
	return b.String()
}

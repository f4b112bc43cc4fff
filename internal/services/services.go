// Package services hosts the domain services reachable through the
// orchestrator registry: SMART validation, anomaly detection, RAG-grounded
// KPI suggestion, and submission review.
package services

import (
	"encoding/json"
	"fmt"

	"github.com/perfdesk/perfai/internal/indexer"
	"github.com/perfdesk/perfai/internal/orchestrator"
)

// Registry builds the factory map handed to the orchestrator. Factories run
// lazily on first call; each service keeps the Caller back-reference so it
// can issue nested LLM calls through the same pipeline.
func Registry(retriever *indexer.Retriever) map[string]orchestrator.Factory {
	return map[string]orchestrator.Factory{
		"smart-validator": func(c orchestrator.Caller) (orchestrator.Service, error) {
			return NewSmartValidator(c), nil
		},
		"anomaly-detector": func(c orchestrator.Caller) (orchestrator.Service, error) {
			return NewAnomalyDetector(), nil
		},
		"kpi-suggester": func(c orchestrator.Caller) (orchestrator.Service, error) {
			return NewKPISuggester(c, retriever), nil
		},
		"approval-assistant": func(c orchestrator.Caller) (orchestrator.Service, error) {
			return NewApprovalAssistant(c), nil
		},
	}
}

// decodeParams re-marshals a params map into a typed struct so each service
// declares its input shape with plain struct tags.
func decodeParams(params map[string]any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding params: %w", err)
	}
	return nil
}

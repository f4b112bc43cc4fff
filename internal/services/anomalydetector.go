package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/perfdesk/perfai/internal/anomaly"
	"github.com/perfdesk/perfai/internal/orchestrator"
)

// AnomalyDetector runs the statistical checks over submitted KPI actuals.
// It is fully deterministic and never touches the LLM backend.
type AnomalyDetector struct{}

func NewAnomalyDetector() *AnomalyDetector { return &AnomalyDetector{} }

type detectParams struct {
	History     []float64 `json:"history"`
	Actual      *float64  `json:"actual"`
	ZThreshold  float64   `json:"zThreshold"`
	IQRFactor   float64   `json:"iqrFactor"`
	SpikeFactor float64   `json:"spikeFactor"`
}

func (s *AnomalyDetector) Invoke(ctx context.Context, method string, params map[string]any) (any, error) {
	if method != "detect" {
		return nil, fmt.Errorf("anomaly-detector: unknown method %q", method)
	}

	var p detectParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Actual == nil {
		return nil, errors.New("anomaly-detector: actual is required")
	}

	report := anomaly.Detect(p.History, *p.Actual, anomaly.Options{
		ZThreshold:  p.ZThreshold,
		IQRFactor:   p.IQRFactor,
		SpikeFactor: p.SpikeFactor,
	})
	return report, nil
}

var _ orchestrator.Service = (*AnomalyDetector)(nil)

// Package provider implements the LLM backends the orchestrator dispatches
// prompt-shaped calls to. Exactly one backend is selected by configuration;
// each is a plain HTTP POST with provider-specific request and response
// shaping.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Request is a prompt-shaped call forwarded to the configured backend.
type Request struct {
	Prompt      string
	Context     string // extra grounding text; only the local backend sends it separately
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider completes a prompt against one LLM backend. The returned value is
// the parsed JSON object when the response text parses as JSON, otherwise
// the raw response string — callers must tolerate either shape.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (any, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Provider string // anthropic | openai | local
	APIKey   string
	Endpoint string // base URL override; required for local
	Model    string
}

const defaultHTTPTimeout = 120 * time.Second

// New constructs the backend named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg), nil
	case "openai":
		return newOpenAI(cfg), nil
	case "local":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("local provider requires an endpoint")
		}
		return newLocal(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

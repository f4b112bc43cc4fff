package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// localClient posts to a self-hosted inference endpoint with a minimal
// {prompt, context, model} body. The response text comes from the
// "response" field when present, otherwise the whole body is used.
type localClient struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

func newLocal(cfg Config) *localClient {
	return &localClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		httpClient: newHTTPClient(),
	}
}

func (c *localClient) Name() string { return "local" }

type localRequest struct {
	Prompt  string `json:"prompt"`
	Context string `json:"context,omitempty"`
	Model   string `json:"model,omitempty"`
}

func (c *localClient) Complete(ctx context.Context, req Request) (any, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(localRequest{
		Prompt:  req.Prompt,
		Context: req.Context,
		Model:   model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("local endpoint returned status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	// Prefer the "response" field; fall back to the raw body.
	var envelope struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Response != "" {
		return decodeLoose(envelope.Response), nil
	}
	return decodeLoose(string(respBody)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

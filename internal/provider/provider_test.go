package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestAnthropic_Complete(t *testing.T) {
	var gotHeaders http.Header
	var gotBody anthropicRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"content":[{"type":"text","text":"eighty-seven"}]}`)
	}))
	defer srv.Close()

	p := newAnthropic(Config{APIKey: "ak-test", Endpoint: srv.URL})
	got, err := p.Complete(context.Background(), Request{Prompt: "score this KPI"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "eighty-seven" {
		t.Errorf("got %v, want eighty-seven", got)
	}
	if gotHeaders.Get("x-api-key") != "ak-test" {
		t.Errorf("x-api-key = %q", gotHeaders.Get("x-api-key"))
	}
	if gotHeaders.Get("anthropic-version") != "2023-06-01" {
		t.Errorf("anthropic-version = %q", gotHeaders.Get("anthropic-version"))
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want single user message", gotBody.Messages)
	}
	if gotBody.MaxTokens == 0 {
		t.Error("max_tokens not defaulted")
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"score\": 87}"}}]}`)
	}))
	defer srv.Close()

	p := newOpenAI(Config{APIKey: "sk-test", Endpoint: srv.URL})
	got, err := p.Complete(context.Background(), Request{Prompt: "score this KPI"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := map[string]any{"score": float64(87)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestLocal_Complete_ResponseField(t *testing.T) {
	var gotBody localRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"response":"[1,2,3]"}`)
	}))
	defer srv.Close()

	p := newLocal(Config{Endpoint: srv.URL, Model: "llama3"})
	got, err := p.Complete(context.Background(), Request{Prompt: "list ids", Context: "grounding"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := []any{float64(1), float64(2), float64(3)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
	if gotBody.Context != "grounding" {
		t.Errorf("context = %q, want grounding", gotBody.Context)
	}
	if gotBody.Model != "llama3" {
		t.Errorf("model = %q, want llama3", gotBody.Model)
	}
}

func TestLocal_Complete_RawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "plain text answer")
	}))
	defer srv.Close()

	p := newLocal(Config{Endpoint: srv.URL})
	got, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "plain text answer" {
		t.Errorf("got %v, want raw body", got)
	}
}

func TestComplete_MalformedResponsePassthrough(t *testing.T) {
	// Refusal text must come back unchanged, not parsed, not an error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Sorry, I cannot help with that."}}]}`)
	}))
	defer srv.Close()

	p := newOpenAI(Config{APIKey: "k", Endpoint: srv.URL})
	got, err := p.Complete(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "Sorry, I cannot help with that." {
		t.Errorf("got %v, want the refusal string unchanged", got)
	}
}

func TestComplete_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newAnthropic(Config{APIKey: "k", Endpoint: srv.URL})
	if _, err := p.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("Complete succeeded on 503, want error")
	}
}

func TestDecodeLoose(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{`  [1,2]`, []any{float64(1), float64(2)}},
		{`{"broken":`, `{"broken":`}, // JSON-looking but malformed: raw text
		{"plain words", "plain words"},
	}
	for _, c := range cases {
		if got := decodeLoose(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("decodeLoose(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "bedrock"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(Config{Provider: "local"}); err == nil {
		t.Error("expected error for local provider without endpoint")
	}
}

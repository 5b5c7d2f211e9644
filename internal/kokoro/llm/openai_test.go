package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/Kokoro/internal/kokoro/llm"
)

func TestOpenAIComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"*她点头* \"你好。\""},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":42,"completion_tokens":10,"total_tokens":52}
		}`))
	}))
	defer srv.Close()

	p := llm.NewOpenAI(llm.OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "deepseek-v3"})
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "# 角色设定"},
			{Role: llm.RoleUser, Content: "你好"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if !strings.Contains(resp.Content, "你好") {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 52 {
		t.Errorf("total tokens = %d, want 52", resp.Usage.TotalTokens)
	}

	// Sampling defaults fill unset request fields.
	if gotBody["model"] != "deepseek-v3" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["temperature"] != llm.DefaultTemperature {
		t.Errorf("temperature = %v", gotBody["temperature"])
	}
	if gotBody["top_p"] != llm.DefaultTopP {
		t.Errorf("top_p = %v", gotBody["top_p"])
	}
	if gotBody["max_tokens"] != float64(llm.DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want API error surfaced", err)
	}
}

func TestOpenAIComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}

/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pgedge-dataset-agent/internal/config"
)

var testMessages = []Message{
	{Role: RoleSystem, Content: "rules"},
	{Role: RoleSystem, Content: "schema"},
	{Role: RoleUser, Content: "total spend?"},
}

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.System != "rules\n\nschema" {
			t.Errorf("system = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser {
			t.Errorf("messages = %+v, want only the user message", req.Messages)
		}
		if req.MaxTokens != 500 || req.Temperature != 0.1 {
			t.Errorf("max_tokens=%d temperature=%v", req.MaxTokens, req.Temperature)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"` + "```sql\\nSELECT 1\\n```" + `"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	c := NewAnthropic("test-key", server.URL, "claude-test", server.Client())
	got, err := c.Complete(context.Background(), Request{Messages: testMessages, MaxTokens: 500, Temperature: 0.1})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "```sql\nSELECT 1\n```" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestOpenAIComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if len(req.Messages) != 3 {
			t.Errorf("messages = %d, want 3", len(req.Messages))
		}
		if req.Model != "override" {
			t.Errorf("model = %q, want override", req.Model)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	c := NewOpenAI("sk-test", server.URL, "", server.Client())
	got, err := c.Complete(context.Background(), Request{Messages: testMessages, Model: "override", MaxTokens: 10})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("Complete() = %q, want hello", got)
	}
}

func TestOllamaComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		if req.Stream {
			t.Error("stream should be false")
		}
		if req.Options["num_predict"] != float64(500) {
			t.Errorf("num_predict = %v", req.Options["num_predict"])
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"from ollama"},"done":true}`))
	}))
	defer server.Close()

	c := NewOllama(server.URL, "llama3", server.Client())
	got, err := c.Complete(context.Background(), Request{Messages: testMessages, MaxTokens: 500, Temperature: 0.7})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "from ollama" {
		t.Errorf("Complete() = %q", got)
	}
}

func TestCompleteErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chat/completions") {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tests := []struct {
		name    string
		c       Completer
		wantErr string
	}{
		{"http status", NewAnthropic("bad", server.URL, "", server.Client()), "API error 401"},
		{"no choices", NewOpenAI("k", server.URL, "", server.Client()), "no choices"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.c.Complete(context.Background(), Request{Messages: testMessages})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCompleteCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewOpenAI("k", server.URL, "", server.Client())
	if _, err := c.Complete(ctx, Request{Messages: testMessages}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LLMConfig
		wantErr bool
	}{
		{"anthropic", config.LLMConfig{Provider: "anthropic", AnthropicAPIKey: "k"}, false},
		{"anthropic without key", config.LLMConfig{Provider: "anthropic"}, true},
		{"openai", config.LLMConfig{Provider: "openai", OpenAIAPIKey: "k"}, false},
		{"openai without key", config.LLMConfig{Provider: "openai"}, true},
		{"ollama", config.LLMConfig{Provider: "ollama", Model: "llama3"}, false},
		{"unknown", config.LLMConfig{Provider: "bard"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Error("New() returned nil completer")
			}
		})
	}
}

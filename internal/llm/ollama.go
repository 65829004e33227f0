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
	"fmt"
	"net/http"
	"strings"
	"time"

	"pgedge-dataset-agent/internal/logging"
)

// Ollama implements Completer for a local Ollama server
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama client
func NewOllama(baseURL, model string, client *http.Client) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

// Complete sends a non-streaming request to /api/chat
func (c *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	body := ollamaRequest{
		Model:    pickModel(req, c.model),
		Messages: req.Messages,
		Stream:   false,
		Options: map[string]interface{}{
			"temperature": req.Temperature,
		},
	}
	if req.MaxTokens > 0 {
		body.Options["num_predict"] = req.MaxTokens
	}

	start := time.Now()
	var resp ollamaResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", nil, body, &resp); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}

	logging.Debug("llm_completion",
		"provider", "ollama",
		"model", body.Model,
		"input_tokens", resp.PromptEvalCount,
		"output_tokens", resp.EvalCount,
		"duration", time.Since(start).String(),
	)

	return resp.Message.Content, nil
}

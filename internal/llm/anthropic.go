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

const defaultAnthropicURL = "https://api.anthropic.com/v1"

// Anthropic implements Completer for the Anthropic Messages API
type Anthropic struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewAnthropic creates an Anthropic client; an empty baseURL selects the public API
func NewAnthropic(apiKey, baseURL, model string, client *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Anthropic{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends the request to /messages. System messages are lifted into
// the top-level system field since the API does not accept them inline.
func (c *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	var system []string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}

	body := anthropicRequest{
		Model:       pickModel(req, c.model),
		MaxTokens:   req.MaxTokens,
		System:      strings.Join(system, "\n\n"),
		Messages:    messages,
		Temperature: req.Temperature,
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}

	start := time.Now()
	var resp anthropicResponse
	if err := postJSON(ctx, c.client, c.baseURL+"/messages", headers, body, &resp); err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, item := range resp.Content {
		if item.Type == "text" {
			text.WriteString(item.Text)
		}
	}

	logging.Debug("llm_completion",
		"provider", "anthropic",
		"model", body.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason,
		"duration", time.Since(start).String(),
	)

	return text.String(), nil
}

/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"pgedge-dataset-agent/internal/logging"
)

// OllamaProvider implements embedding generation using a local Ollama server
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client

	mu         sync.Mutex
	dimensions int // learned from the first response
}

type ollamaEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbeddingResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Known dimensions for common Ollama embedding models
var ollamaModelDimensions = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
}

// NewOllamaProvider creates a new Ollama embedding provider
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("Ollama URL cannot be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("Ollama model cannot be empty")
	}

	logging.Info("embedding_provider_initialized", "provider", "ollama", "model", model, "base_url", baseURL)

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		client:     &http.Client{Timeout: 60 * time.Second},
		dimensions: ollamaModelDimensions[model],
	}, nil
}

// Embed generates an embedding vector for the given text
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	var resp ollamaEmbeddingResponse
	err := callAPI(ctx, p.client, "ollama", p.model, p.baseURL+"/api/embed", "", len(text),
		ollamaEmbeddingRequest{Model: p.model, Input: text}, &resp)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("received empty embedding from API")
	}

	p.mu.Lock()
	if p.dimensions == 0 {
		p.dimensions = len(resp.Embeddings[0])
	}
	p.mu.Unlock()

	return resp.Embeddings[0], nil
}

// Dimensions returns the embedding size, or 0 until it is known
func (p *OllamaProvider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dimensions
}

// ModelName returns the model name
func (p *OllamaProvider) ModelName() string {
	return p.model
}

// ProviderName returns "ollama"
func (p *OllamaProvider) ProviderName() string {
	return "ollama"
}

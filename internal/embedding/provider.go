/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package embedding generates vector embeddings for retrieval ranking.
package embedding

import (
	"context"
	"fmt"

	"pgedge-dataset-agent/internal/config"
)

// Provider defines the interface for embedding generation
type Provider interface {
	// Embed generates an embedding vector for the given text
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the number of dimensions in the embedding vector
	Dimensions() int

	// ModelName returns the name of the model being used
	ModelName() string

	// ProviderName returns the name of the provider (e.g., "voyage", "ollama", "openai")
	ProviderName() string
}

// Config holds configuration for embedding providers
type Config struct {
	Provider string // "voyage", "ollama", or "openai"
	Model    string // Model name (provider-specific)
	BaseURL  string // Optional API base URL override

	// Voyage AI-specific
	VoyageAPIKey string

	// OpenAI-specific
	OpenAIAPIKey string

	// Ollama-specific
	OllamaURL string
}

// ConfigFrom converts the embedding section of the agent configuration
func ConfigFrom(cfg config.EmbeddingConfig) Config {
	return Config{
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		VoyageAPIKey: cfg.VoyageAPIKey,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OllamaURL:    cfg.OllamaURL,
	}
}

// NewProvider creates a new embedding provider based on configuration.
// An empty provider name returns nil with no error; callers fall back to
// lexical ranking.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "":
		return nil, nil

	case "voyage":
		if cfg.VoyageAPIKey == "" {
			return nil, fmt.Errorf("Voyage AI API key is required when provider is 'voyage'")
		}
		return NewVoyageProvider(cfg.VoyageAPIKey, cfg.Model, cfg.BaseURL)

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required when provider is 'openai'")
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.Model, cfg.BaseURL)

	case "ollama":
		url := cfg.BaseURL
		if url == "" {
			url = cfg.OllamaURL
		}
		if url == "" {
			url = "http://localhost:11434"
		}
		if cfg.Model == "" {
			cfg.Model = "nomic-embed-text"
		}
		return NewOllamaProvider(url, cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (supported: voyage, openai, ollama)", cfg.Provider)
	}
}

// maskKey shows only the first and last few characters of an API key
func maskKey(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
	}
	return "(redacted)"
}

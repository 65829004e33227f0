/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package generate builds the two completion prompts of an ask: one that
// turns a question into a query and one that explains the query's result.
package generate

import (
	"errors"
	"fmt"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/fuzzy"
	"pgedge-dataset-agent/internal/llm"
)

// Stage names used in GenerationError
const (
	StageQuery   = "query"
	StageInsight = "insight"
)

// ErrEmptyReply is returned when the completion has no usable text
var ErrEmptyReply = errors.New("completion returned no text")

// GenerationError reports a failed or unusable completion
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Settings holds what both generators need from the configuration
type Settings struct {
	Model              string
	MaxTokens          int
	QueryTemperature   float64
	InsightTemperature float64

	Dialect         string // SQL dialect named in the query rules
	Table           string
	MaxPromptValues int // Categorical values listed per column
	MaxPromptRows   int // Result rows shown to the insight prompt

	Prompt config.PromptConfig

	// Matcher produces spelling hints; nil disables them
	Matcher *fuzzy.Matcher
}

// SettingsFrom builds Settings from the configuration and the store dialect
func SettingsFrom(cfg *config.Config, dialect string) Settings {
	s := Settings{
		Model:              cfg.LLM.Model,
		MaxTokens:          cfg.LLM.MaxTokens,
		QueryTemperature:   cfg.LLM.QueryTemperature,
		InsightTemperature: cfg.LLM.InsightTemperature,
		Dialect:            dialect,
		Table:              cfg.Dataset.TableName,
		MaxPromptValues:    cfg.Dataset.MaxPromptValues,
		MaxPromptRows:      cfg.Dataset.MaxPromptRows,
		Prompt:             cfg.Prompt,
	}
	if cfg.Fuzzy.Enabled {
		m := fuzzy.New(cfg.Fuzzy.Threshold)
		s.Matcher = &m
	}
	return s
}

func (s Settings) request(messages []llm.Message, temperature float64) llm.Request {
	maxTokens := s.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return llm.Request{
		Messages:    messages,
		Model:       s.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

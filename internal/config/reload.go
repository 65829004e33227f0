/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"sync"

	"pgedge-dataset-agent/internal/logging"
)

// ReloadableConfig wraps a Config with thread-safe access and reload capability
type ReloadableConfig struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	cliFlags CLIFlags
	onReload []func(*Config)
}

// NewReloadableConfig creates a new reloadable configuration
func NewReloadableConfig(config *Config, path string, cliFlags CLIFlags) *ReloadableConfig {
	return &ReloadableConfig{
		config:   config,
		path:     path,
		cliFlags: cliFlags,
		onReload: make([]func(*Config), 0),
	}
}

// Get returns the current configuration (read-only access)
func (rc *ReloadableConfig) Get() *Config {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.config
}

// Reload reloads the configuration from the file.
// Returns an error if the reload fails, but keeps the old config.
func (rc *ReloadableConfig) Reload() error {
	rc.mu.Lock()

	if rc.path == "" {
		rc.mu.Unlock()
		return fmt.Errorf("no configuration file path set")
	}

	// LoadConfig applies env vars, CLI flags and validation internally
	newConfig, err := LoadConfig(rc.path, rc.cliFlags)
	if err != nil {
		rc.mu.Unlock()
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rc.logRestartRequiredSettings(newConfig)
	rc.config = newConfig
	callbacks := append([]func(*Config){}, rc.onReload...)
	rc.mu.Unlock()

	// Callbacks run unlocked so they may call Get
	for _, callback := range callbacks {
		callback(newConfig)
	}

	logging.Info("config_reloaded", "path", rc.path)
	return nil
}

// logRestartRequiredSettings logs settings that changed but only apply after a restart.
// The sanitizer, render, fuzzy and prompt sections apply to the next question.
func (rc *ReloadableConfig) logRestartRequiredSettings(newConfig *Config) {
	old := rc.config

	restart := func(key string, changed bool) {
		if changed {
			logging.Warn("config_change_requires_restart", "setting", key)
		}
	}

	restart("http.address", old.HTTP.Address != newConfig.HTTP.Address)
	restart("store.backend", old.Store.Backend != newConfig.Store.Backend)
	restart("retrieval.docs_dir", old.Retrieval.DocsDir != newConfig.Retrieval.DocsDir)
	restart("retrieval.index_path", old.Retrieval.IndexPath != newConfig.Retrieval.IndexPath)
	restart("history.data_dir", old.History.DataDir != newConfig.History.DataDir)
	restart("metrics.backend", old.Metrics.Backend != newConfig.Metrics.Backend)

	if old.LLM.Provider != newConfig.LLM.Provider {
		logging.Warn("config_change_requires_restart", "setting", "llm.provider", "value", newConfig.LLM.Provider)
	}
	if old.Embedding.Provider != newConfig.Embedding.Provider {
		logging.Warn("config_change_requires_restart", "setting", "embedding.provider", "value", newConfig.Embedding.Provider)
	}
}

// OnReload registers a callback to be called when configuration is reloaded.
// The callback receives the new configuration.
func (rc *ReloadableConfig) OnReload(fn func(*Config)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.onReload = append(rc.onReload, fn)
}

// GetPath returns the configuration file path
func (rc *ReloadableConfig) GetPath() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.path
}

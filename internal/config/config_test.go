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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv blanks every variable LoadConfig reads so the host environment
// cannot leak into a test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(key, "PGEDGE_") || strings.HasPrefix(key, "PG") ||
			strings.HasSuffix(key, "_API_KEY") {
			t.Setenv(key, "")
		}
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigName)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Dataset.TableName != "purchase" {
		t.Errorf("Expected default table 'purchase', got %s", cfg.Dataset.TableName)
	}
	if cfg.Dataset.DateColumn != "date" {
		t.Errorf("Expected default date column 'date', got %s", cfg.Dataset.DateColumn)
	}
	if cfg.Sanitizer.LimitFloor != 1 || cfg.Sanitizer.LimitMinimum != 5 || cfg.Sanitizer.MaxRows != 1000 {
		t.Errorf("Unexpected sanitizer defaults: %+v", cfg.Sanitizer)
	}
	if cfg.LLM.QueryTemperature >= cfg.LLM.InsightTemperature {
		t.Error("Expected query temperature to be lower than insight temperature")
	}
	if cfg.Retrieval.ChunkSize != 250 || cfg.Retrieval.ChunkOverlap != 50 || cfg.Retrieval.TopK != 2 {
		t.Errorf("Unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("Expected sqlite store by default, got %s", cfg.Store.Backend)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Errorf("Expected default address ':8080', got %s", cfg.HTTP.Address)
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestLoadConfigPriority(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
llm:
  provider: anthropic
  model: file-model
render:
  enabled: false
http:
  address: ":9000"
`)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path, CLIFlags{ConfigFileSet: true, ConfigFile: path})
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "file-model" {
			t.Errorf("LLM = %+v", cfg.LLM)
		}
		if cfg.Render.Enabled {
			t.Error("render.enabled: false in the file should be honoured")
		}
		// Keys absent from the file keep defaults
		if cfg.LLM.MaxTokens != 500 {
			t.Errorf("MaxTokens = %d, want 500", cfg.LLM.MaxTokens)
		}
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("PGEDGE_LLM_MODEL", "env-model")
		t.Setenv("PGEDGE_HTTP_ADDRESS", ":9100")
		cfg, err := LoadConfig(path, CLIFlags{})
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.LLM.Model != "env-model" {
			t.Errorf("Model = %s, want env-model", cfg.LLM.Model)
		}
		if cfg.HTTP.Address != ":9100" {
			t.Errorf("Address = %s, want :9100", cfg.HTTP.Address)
		}
	})

	t.Run("flags override env", func(t *testing.T) {
		t.Setenv("PGEDGE_LLM_MODEL", "env-model")
		cfg, err := LoadConfig(path, CLIFlags{
			LLMModel: "flag-model", LLMModelSet: true,
			RenderEnabled: true, RenderEnabledSet: true,
		})
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.LLM.Model != "flag-model" {
			t.Errorf("Model = %s, want flag-model", cfg.LLM.Model)
		}
		if !cfg.Render.Enabled {
			t.Error("render flag should override the file")
		}
	})
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := LoadConfig(missing, CLIFlags{}); err != nil {
		t.Errorf("missing default config should not fail: %v", err)
	}
	if _, err := LoadConfig(missing, CLIFlags{ConfigFileSet: true, ConfigFile: missing}); err == nil {
		t.Error("missing explicit config should fail")
	}
}

func TestAPIKeyFile(t *testing.T) {
	clearEnv(t)

	keyFile := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(keyFile, []byte("  sk-from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, "llm:\n  openai_api_key_file: "+keyFile+"\n")

	cfg, err := LoadConfig(path, CLIFlags{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LLM.OpenAIAPIKey != "sk-from-file" {
		t.Errorf("OpenAIAPIKey = %q, want sk-from-file", cfg.LLM.OpenAIAPIKey)
	}

	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	cfg, err = LoadConfig(path, CLIFlags{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.LLM.OpenAIAPIKey != "sk-from-env" {
		t.Errorf("OpenAIAPIKey = %q, want sk-from-env", cfg.LLM.OpenAIAPIKey)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm provider"},
		{"bad embedding", func(c *Config) { c.Embedding.Provider = "x" }, "embedding provider"},
		{"overlap too large", func(c *Config) { c.Retrieval.ChunkOverlap = 250 }, "chunk_overlap"},
		{"minimum below floor", func(c *Config) { c.Sanitizer.LimitMinimum = 1 }, "limit_minimum"},
		{"max rows below minimum", func(c *Config) { c.Sanitizer.MaxRows = 3 }, "max_rows"},
		{"threshold zero", func(c *Config) { c.Fuzzy.Threshold = 0 }, "fuzzy.threshold"},
		{"postgres without user", func(c *Config) { c.Store.Backend = "postgres" }, "postgres.user"},
		{"mysql without dsn", func(c *Config) { c.Store.Backend = "mysql" }, "mysql.dsn"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "oracle" }, "store backend"},
		{"bad metrics", func(c *Config) { c.Metrics.Backend = "statsd" }, "metrics backend"},
		{"temperature", func(c *Config) { c.LLM.InsightTemperature = 3 }, "temperatures"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBuildConnectionString(t *testing.T) {
	pg := PostgresConfig{Host: "db", Port: 5433, Database: "agent", User: "bob", SSLMode: "disable"}
	if got := pg.BuildConnectionString(); got != "postgres://bob@db:5433/agent?sslmode=disable" {
		t.Errorf("BuildConnectionString() = %s", got)
	}
	pg.Password = "pw"
	if got := pg.BuildConnectionString(); !strings.Contains(got, "bob:pw@") {
		t.Errorf("BuildConnectionString() = %s, want password", got)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", DefaultConfigName)

	cfg := defaultConfig()
	cfg.Prompt.WeightColumn = "gweight"
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	if !ConfigFileExists(path) {
		t.Fatal("config file was not written")
	}

	loaded, err := LoadConfig(path, CLIFlags{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Prompt.WeightColumn != "gweight" {
		t.Errorf("WeightColumn = %q, want gweight", loaded.Prompt.WeightColumn)
	}
}

func TestReloadableConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "sanitizer:\n  max_rows: 200\n")

	cfg, err := LoadConfig(path, CLIFlags{})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	rc := NewReloadableConfig(cfg, path, CLIFlags{})

	var seen int
	rc.OnReload(func(c *Config) { seen = c.Sanitizer.MaxRows })

	if err := os.WriteFile(path, []byte("sanitizer:\n  max_rows: 300\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := rc.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if seen != 300 || rc.Get().Sanitizer.MaxRows != 300 {
		t.Errorf("reload not applied: callback %d, config %d", seen, rc.Get().Sanitizer.MaxRows)
	}

	// An invalid file keeps the previous config
	if err := os.WriteFile(path, []byte("sanitizer:\n  max_rows: 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := rc.Reload(); err == nil {
		t.Error("expected reload of invalid config to fail")
	}
	if rc.Get().Sanitizer.MaxRows != 300 {
		t.Errorf("MaxRows = %d, want previous value 300", rc.Get().Sanitizer.MaxRows)
	}
}

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
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigName is the file name searched for next to the binary
const DefaultConfigName = "pgedge-dataset-agent.yaml"

// Config represents the complete agent configuration
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Sanitizer SanitizerConfig `yaml:"sanitizer"`
	Fuzzy     FuzzyConfig     `yaml:"fuzzy"`
	Store     StoreConfig     `yaml:"store"`
	Render    RenderConfig    `yaml:"render"`
	HTTP      HTTPConfig      `yaml:"http"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LLMConfig holds completion service settings
type LLMConfig struct {
	Provider            string  `yaml:"provider"`               // "anthropic", "openai", or "ollama"
	Model               string  `yaml:"model"`                  // Provider-specific model name
	BaseURL             string  `yaml:"base_url"`               // Optional API base URL override
	AnthropicAPIKey     string  `yaml:"anthropic_api_key"`      // Discouraged, use the key file or env var
	AnthropicAPIKeyFile string  `yaml:"anthropic_api_key_file"` // Path to file containing the Anthropic key
	OpenAIAPIKey        string  `yaml:"openai_api_key"`         // Discouraged, use the key file or env var
	OpenAIAPIKeyFile    string  `yaml:"openai_api_key_file"`    // Path to file containing the OpenAI key
	OllamaURL           string  `yaml:"ollama_url"`             // URL for Ollama service
	MaxTokens           int     `yaml:"max_tokens"`             // Output token cap for both generation stages
	QueryTemperature    float64 `yaml:"query_temperature"`      // Sampling temperature for query generation
	InsightTemperature  float64 `yaml:"insight_temperature"`    // Sampling temperature for insight generation
	TimeoutSeconds      int     `yaml:"timeout_seconds"`        // HTTP client timeout
}

// EmbeddingConfig holds embedding provider settings for retrieval
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"` // "voyage", "openai", "ollama", or empty for lexical ranking
	Model            string `yaml:"model"`
	VoyageAPIKey     string `yaml:"voyage_api_key"`
	VoyageAPIKeyFile string `yaml:"voyage_api_key_file"`
	OpenAIAPIKey     string `yaml:"openai_api_key"`
	OpenAIAPIKeyFile string `yaml:"openai_api_key_file"`
	OllamaURL        string `yaml:"ollama_url"`
}

// RetrievalConfig controls the instructional corpus index
type RetrievalConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DocsDir      string `yaml:"docs_dir"`      // Directory of reference documents
	IndexPath    string `yaml:"index_path"`    // SQLite index file, ":memory:" for a per-session index
	ChunkSize    int    `yaml:"chunk_size"`    // Words per chunk
	ChunkOverlap int    `yaml:"chunk_overlap"` // Words shared by neighbouring chunks
	TopK         int    `yaml:"top_k"`
	Workers      int    `yaml:"workers"` // Concurrent embedding requests
}

// DatasetConfig describes how uploaded data is exposed to the model
type DatasetConfig struct {
	TableName       string `yaml:"table_name"`
	DateColumn      string `yaml:"date_column"`
	MaxPromptValues int    `yaml:"max_prompt_values"` // Categorical values listed per column in the prompt
	MaxPromptRows   int    `yaml:"max_prompt_rows"`   // Result rows sent to the insight prompt
}

// PromptConfig holds the business rules written into the prompts
type PromptConfig struct {
	WeightColumn     string   `yaml:"weight_column"`     // Weight for population totals; detected from weight_candidates when empty
	WeightCandidates []string `yaml:"weight_candidates"` // Numeric column names treated as the weight, in order
	BuyerColumn      string   `yaml:"buyer_column"`
	DefaultMeasure string `yaml:"default_measure"`
	Currency       string `yaml:"currency"`
	VolumeUnit     string `yaml:"volume_unit"`
}

// SanitizerConfig bounds the size of generated result sets
type SanitizerConfig struct {
	LimitFloor   int `yaml:"limit_floor"`   // LIMIT values at or below this are raised
	LimitMinimum int `yaml:"limit_minimum"` // Value they are raised to
	MaxRows      int `yaml:"max_rows"`      // Row cap applied to every statement
}

// FuzzyConfig controls nearest-match resolution of categorical values
type FuzzyConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// StoreConfig selects and configures the relational store
type StoreConfig struct {
	Backend                 string         `yaml:"backend"`    // "sqlite", "postgres", or "mysql"
	SQLiteDir               string         `yaml:"sqlite_dir"` // Empty keeps session databases in memory
	StatementTimeoutSeconds int            `yaml:"statement_timeout_seconds"`
	Postgres                PostgresConfig `yaml:"postgres"`
	MySQL                   MySQLConfig    `yaml:"mysql"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"` // Optional, pgx falls back to .pgpass
	SSLMode  string `yaml:"sslmode"`
}

// MySQLConfig holds MySQL connection settings
type MySQLConfig struct {
	DSN string `yaml:"dsn"` // go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/
}

// RenderConfig controls the chart sandbox
type RenderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Python         string `yaml:"python"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MemoryLimitMB  int    `yaml:"memory_limit_mb"`
	DPI            int    `yaml:"dpi"`
}

// HTTPConfig holds HTTP API settings
type HTTPConfig struct {
	Address     string   `yaml:"address"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxUploadMB int      `yaml:"max_upload_mb"`
}

// HistoryConfig controls persistence of past questions
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir"`
}

// MetricsConfig selects a metrics backend
type MetricsConfig struct {
	Backend      string   `yaml:"backend"` // "none" or "datadog"
	JobName      string   `yaml:"job_name"`
	Tags         []string `yaml:"tags"`
	FlushSeconds int      `yaml:"flush_seconds"`
}

// CLIFlags represents command line flag values and whether they were explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	HTTPAddr    string
	HTTPAddrSet bool

	LLMProvider    string
	LLMProviderSet bool
	LLMModel       string
	LLMModelSet    bool

	StoreBackend    string
	StoreBackendSet bool

	DocsDir      string
	DocsDirSet   bool
	IndexPath    string
	IndexPathSet bool

	RenderEnabled    bool
	RenderEnabledSet bool
}

// LoadConfig loads configuration with proper priority:
// 1. Command line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Hard-coded defaults (lowest priority)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			// A missing default file is fine, an explicit one is not
			if cliFlags.ConfigFileSet || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvironmentVariables(cfg)
	applyCLIFlags(cfg, cliFlags)
	loadAPIKeyFiles(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the hard-coded defaults
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:           "openai",
			Model:              "gpt-4o-mini",
			OllamaURL:          "http://localhost:11434",
			MaxTokens:          500,
			QueryTemperature:   0.1,
			InsightTemperature: 0.7,
			TimeoutSeconds:     60,
		},
		Embedding: EmbeddingConfig{
			Provider:  "", // lexical ranking until a provider is configured
			OllamaURL: "http://localhost:11434",
		},
		Retrieval: RetrievalConfig{
			Enabled:      true,
			IndexPath:    ":memory:",
			ChunkSize:    250,
			ChunkOverlap: 50,
			TopK:         2,
			Workers:      4,
		},
		Dataset: DatasetConfig{
			TableName:       "purchase",
			DateColumn:      "date",
			MaxPromptValues: 200,
			MaxPromptRows:   200,
		},
		Prompt: PromptConfig{
			WeightCandidates: []string{"gweight", "weight"},
			DefaultMeasure:   "spend",
			Currency:       "£",
			VolumeUnit:     "KG",
		},
		Sanitizer: SanitizerConfig{
			LimitFloor:   1,
			LimitMinimum: 5,
			MaxRows:      1000,
		},
		Fuzzy: FuzzyConfig{
			Enabled:   true,
			Threshold: 0.45,
		},
		Store: StoreConfig{
			Backend:                 "sqlite",
			StatementTimeoutSeconds: 30,
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				SSLMode:  "prefer",
			},
		},
		Render: RenderConfig{
			Enabled:        true,
			Python:         "python3",
			TimeoutSeconds: 30,
			MemoryLimitMB:  1024,
			DPI:            100,
		},
		HTTP: HTTPConfig{
			Address:     ":8080",
			CORSOrigins: []string{"*"},
			MaxUploadMB: 50,
		},
		History: HistoryConfig{
			Enabled: false,
			DataDir: "./data",
		},
		Metrics: MetricsConfig{
			Backend:      "none",
			JobName:      "pgedge-dataset-agent",
			FlushSeconds: 60,
		},
	}
}

// loadConfigFile decodes a YAML file over cfg; keys absent from the file keep their value
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback checks multiple environment variable names in priority order
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

// setBoolFromEnv accepts "true", "1", or "yes" as true values
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			*dest = intVal
		}
	}
}

func setFloatFromEnv(dest *float64, key string) {
	if val := os.Getenv(key); val != "" {
		var floatVal float64
		if _, err := fmt.Sscanf(val, "%f", &floatVal); err == nil {
			*dest = floatVal
		}
	}
}

// setListFromEnv splits a comma separated value
func setListFromEnv(dest *[]string, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dest = out
}

// applyEnvironmentVariables overrides config with environment variables if they exist.
// All variables use the PGEDGE_ prefix; provider keys also accept the vendor names.
func applyEnvironmentVariables(cfg *Config) {
	// LLM
	setStringFromEnv(&cfg.LLM.Provider, "PGEDGE_LLM_PROVIDER")
	setStringFromEnv(&cfg.LLM.Model, "PGEDGE_LLM_MODEL")
	setStringFromEnv(&cfg.LLM.BaseURL, "PGEDGE_LLM_BASE_URL")
	setStringFromEnvWithFallback(&cfg.LLM.AnthropicAPIKey, "PGEDGE_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	setStringFromEnvWithFallback(&cfg.LLM.OpenAIAPIKey, "PGEDGE_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStringFromEnv(&cfg.LLM.OllamaURL, "PGEDGE_OLLAMA_URL")
	setIntFromEnv(&cfg.LLM.MaxTokens, "PGEDGE_LLM_MAX_TOKENS")
	setFloatFromEnv(&cfg.LLM.QueryTemperature, "PGEDGE_LLM_QUERY_TEMPERATURE")
	setFloatFromEnv(&cfg.LLM.InsightTemperature, "PGEDGE_LLM_INSIGHT_TEMPERATURE")
	setIntFromEnv(&cfg.LLM.TimeoutSeconds, "PGEDGE_LLM_TIMEOUT_SECONDS")

	// Embedding
	setStringFromEnv(&cfg.Embedding.Provider, "PGEDGE_EMBEDDING_PROVIDER")
	setStringFromEnv(&cfg.Embedding.Model, "PGEDGE_EMBEDDING_MODEL")
	setStringFromEnvWithFallback(&cfg.Embedding.VoyageAPIKey, "PGEDGE_VOYAGE_API_KEY", "VOYAGE_API_KEY")
	setStringFromEnvWithFallback(&cfg.Embedding.OpenAIAPIKey, "PGEDGE_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStringFromEnv(&cfg.Embedding.OllamaURL, "PGEDGE_OLLAMA_URL")

	// Retrieval
	setBoolFromEnv(&cfg.Retrieval.Enabled, "PGEDGE_RETRIEVAL_ENABLED")
	setStringFromEnv(&cfg.Retrieval.DocsDir, "PGEDGE_RETRIEVAL_DOCS_DIR")
	setStringFromEnv(&cfg.Retrieval.IndexPath, "PGEDGE_RETRIEVAL_INDEX_PATH")
	setIntFromEnv(&cfg.Retrieval.TopK, "PGEDGE_RETRIEVAL_TOP_K")

	// Dataset and prompt rules
	setStringFromEnv(&cfg.Dataset.TableName, "PGEDGE_DATASET_TABLE")
	setStringFromEnv(&cfg.Dataset.DateColumn, "PGEDGE_DATASET_DATE_COLUMN")
	setStringFromEnv(&cfg.Prompt.WeightColumn, "PGEDGE_PROMPT_WEIGHT_COLUMN")
	setListFromEnv(&cfg.Prompt.WeightCandidates, "PGEDGE_PROMPT_WEIGHT_CANDIDATES")
	setStringFromEnv(&cfg.Prompt.BuyerColumn, "PGEDGE_PROMPT_BUYER_COLUMN")
	setStringFromEnv(&cfg.Prompt.DefaultMeasure, "PGEDGE_PROMPT_DEFAULT_MEASURE")

	// Store
	setStringFromEnv(&cfg.Store.Backend, "PGEDGE_STORE_BACKEND")
	setStringFromEnv(&cfg.Store.SQLiteDir, "PGEDGE_STORE_SQLITE_DIR")
	setIntFromEnv(&cfg.Store.StatementTimeoutSeconds, "PGEDGE_STORE_STATEMENT_TIMEOUT_SECONDS")
	setStringFromEnv(&cfg.Store.Postgres.Host, "PGEDGE_DB_HOST")
	setIntFromEnv(&cfg.Store.Postgres.Port, "PGEDGE_DB_PORT")
	setStringFromEnv(&cfg.Store.Postgres.Database, "PGEDGE_DB_NAME")
	setStringFromEnv(&cfg.Store.Postgres.User, "PGEDGE_DB_USER")
	setStringFromEnv(&cfg.Store.Postgres.Password, "PGEDGE_DB_PASSWORD")
	setStringFromEnv(&cfg.Store.Postgres.SSLMode, "PGEDGE_DB_SSLMODE")

	// Also support standard PostgreSQL environment variables for convenience
	if cfg.Store.Postgres.Host == "localhost" {
		setStringFromEnv(&cfg.Store.Postgres.Host, "PGHOST")
	}
	if cfg.Store.Postgres.Port == 5432 {
		setIntFromEnv(&cfg.Store.Postgres.Port, "PGPORT")
	}
	if cfg.Store.Postgres.Database == "postgres" {
		setStringFromEnv(&cfg.Store.Postgres.Database, "PGDATABASE")
	}
	if cfg.Store.Postgres.User == "" {
		setStringFromEnv(&cfg.Store.Postgres.User, "PGUSER")
	}
	if cfg.Store.Postgres.Password == "" {
		setStringFromEnv(&cfg.Store.Postgres.Password, "PGPASSWORD")
	}
	setStringFromEnv(&cfg.Store.MySQL.DSN, "PGEDGE_MYSQL_DSN")

	// Render
	setBoolFromEnv(&cfg.Render.Enabled, "PGEDGE_RENDER_ENABLED")
	setStringFromEnv(&cfg.Render.Python, "PGEDGE_RENDER_PYTHON")
	setIntFromEnv(&cfg.Render.TimeoutSeconds, "PGEDGE_RENDER_TIMEOUT_SECONDS")

	// HTTP
	setStringFromEnv(&cfg.HTTP.Address, "PGEDGE_HTTP_ADDRESS")
	setListFromEnv(&cfg.HTTP.CORSOrigins, "PGEDGE_HTTP_CORS_ORIGINS")

	// History
	setBoolFromEnv(&cfg.History.Enabled, "PGEDGE_HISTORY_ENABLED")
	setStringFromEnv(&cfg.History.DataDir, "PGEDGE_HISTORY_DIR")

	// Metrics
	setStringFromEnv(&cfg.Metrics.Backend, "PGEDGE_METRICS_BACKEND")
	setListFromEnv(&cfg.Metrics.Tags, "PGEDGE_METRICS_TAGS")
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	if flags.HTTPAddrSet {
		cfg.HTTP.Address = flags.HTTPAddr
	}
	if flags.LLMProviderSet {
		cfg.LLM.Provider = flags.LLMProvider
	}
	if flags.LLMModelSet {
		cfg.LLM.Model = flags.LLMModel
	}
	if flags.StoreBackendSet {
		cfg.Store.Backend = flags.StoreBackend
	}
	if flags.DocsDirSet {
		cfg.Retrieval.DocsDir = flags.DocsDir
	}
	if flags.IndexPathSet {
		cfg.Retrieval.IndexPath = flags.IndexPath
	}
	if flags.RenderEnabledSet {
		cfg.Render.Enabled = flags.RenderEnabled
	}
}

// loadAPIKeyFiles fills keys that are still empty from their key files.
// Priority: env vars > api_key_file > direct config value, except that a
// direct config value already set is kept.
func loadAPIKeyFiles(cfg *Config) {
	fill := func(dest *string, file string) {
		if *dest != "" || file == "" {
			return
		}
		// Errors are ignored; the file may legitimately be absent
		if key, err := readAPIKeyFromFile(file); err == nil && key != "" {
			*dest = key
		}
	}

	fill(&cfg.LLM.AnthropicAPIKey, cfg.LLM.AnthropicAPIKeyFile)
	fill(&cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIAPIKeyFile)
	fill(&cfg.Embedding.VoyageAPIKey, cfg.Embedding.VoyageAPIKeyFile)
	fill(&cfg.Embedding.OpenAIAPIKey, cfg.Embedding.OpenAIAPIKeyFile)
}

// validateConfig checks if the configuration is valid
func validateConfig(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider %q (supported: anthropic, openai, ollama)", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if cfg.LLM.QueryTemperature < 0 || cfg.LLM.QueryTemperature > 2 ||
		cfg.LLM.InsightTemperature < 0 || cfg.LLM.InsightTemperature > 2 {
		return fmt.Errorf("llm temperatures must be between 0 and 2")
	}

	switch cfg.Embedding.Provider {
	case "", "voyage", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider %q (supported: voyage, openai, ollama)", cfg.Embedding.Provider)
	}

	if cfg.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive")
	}
	if cfg.Retrieval.ChunkOverlap < 0 || cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be between 0 and chunk_size")
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive")
	}

	if cfg.Dataset.TableName == "" {
		return fmt.Errorf("dataset.table_name is required")
	}

	if cfg.Sanitizer.LimitFloor < 0 {
		return fmt.Errorf("sanitizer.limit_floor cannot be negative")
	}
	if cfg.Sanitizer.LimitMinimum <= cfg.Sanitizer.LimitFloor {
		return fmt.Errorf("sanitizer.limit_minimum must be greater than limit_floor")
	}
	if cfg.Sanitizer.MaxRows < cfg.Sanitizer.LimitMinimum {
		return fmt.Errorf("sanitizer.max_rows must be at least limit_minimum")
	}

	if cfg.Fuzzy.Threshold <= 0 || cfg.Fuzzy.Threshold > 1 {
		return fmt.Errorf("fuzzy.threshold must be in (0, 1]")
	}

	switch cfg.Store.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Store.Postgres.User == "" {
			return fmt.Errorf("store.postgres.user is required for the postgres backend (set via PGEDGE_DB_USER, PGUSER env var, or config file)")
		}
	case "mysql":
		if cfg.Store.MySQL.DSN == "" {
			return fmt.Errorf("store.mysql.dsn is required for the mysql backend")
		}
	default:
		return fmt.Errorf("unsupported store backend %q (supported: sqlite, postgres, mysql)", cfg.Store.Backend)
	}

	if cfg.Render.Enabled && cfg.Render.Python == "" {
		return fmt.Errorf("render.python is required when rendering is enabled")
	}

	if cfg.History.Enabled && cfg.History.DataDir == "" {
		return fmt.Errorf("history.data_dir is required when history is enabled")
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	default:
		return fmt.Errorf("unsupported metrics backend %q (supported: none, datadog)", cfg.Metrics.Backend)
	}

	return nil
}

// readAPIKeyFromFile reads an API key from a file.
// Returns the key with whitespace trimmed, or empty string if file doesn't exist.
func readAPIKeyFromFile(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}

	// Expand tilde to home directory
	if filePath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(homeDir, filePath[1:])
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read API key file %s: %w", filePath, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// GetDefaultConfigPath returns the default config file path.
// Searches /etc/pgedge/dataset-agent/ first, then the binary directory.
func GetDefaultConfigPath(binaryPath string) string {
	systemPath := filepath.Join("/etc/pgedge/dataset-agent", DefaultConfigName)
	if _, err := os.Stat(systemPath); err == nil {
		return systemPath
	}

	return filepath.Join(filepath.Dir(binaryPath), DefaultConfigName)
}

// BuildConnectionString creates a PostgreSQL connection string.
// If password is not set, pgx will look it up from the .pgpass file.
func (cfg *PostgresConfig) BuildConnectionString() string {
	connStr := fmt.Sprintf("postgres://%s", cfg.User)

	if cfg.Password != "" {
		connStr += ":" + cfg.Password
	}

	connStr += fmt.Sprintf("@%s:%d/%s", cfg.Host, cfg.Port, cfg.Database)

	if cfg.SSLMode != "" {
		connStr += "?sslmode=" + cfg.SSLMode
	}

	return connStr
}

// ConfigFileExists checks if a config file exists at the given path
func ConfigFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Keys may be present, keep the file private
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

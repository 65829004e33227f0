/*-------------------------------------------------------------------------
 *
 * pgEdge Natural Language Agent
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/embedding"
	"pgedge-dataset-agent/internal/history"
	"pgedge-dataset-agent/internal/llm"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/metrics"
	"pgedge-dataset-agent/internal/metrics/datadog"
	"pgedge-dataset-agent/internal/pipeline"
)

const version = "1.0.0-alpha1"

var (
	configFile string
	logLevel   string
)

// errAskFailed makes the process exit non-zero without printing an error;
// the failure message has already been shown
var errAskFailed = errors.New("question could not be answered")

var rootCmd = &cobra.Command{
	Use:   "pgedge-dataset-agent",
	Short: "pgEdge Natural Language Agent - ask questions about a dataset in plain English",
	Long: `pgedge-dataset-agent loads a CSV or Excel dataset into a relational store,
turns natural language questions into SQL with a language model, runs the
query in a read-only sandbox and answers with a short narrative and a chart.

It can run as an HTTP service (serve), an interactive terminal session (chat)
or a one-shot command (ask). The index command builds the reference document
index used to enrich query generation.`,
	Version:       version,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}
		level, ok := logging.ParseLevel(logLevel)
		if !ok {
			return fmt.Errorf("invalid log level %q (use debug, info, warn or error)", logLevel)
		}
		logging.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"Path to configuration file (default "+config.DefaultConfigName+" next to the binary)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides "+logging.EnvLogLevel+")")

	rootCmd.AddCommand(serveCmd, chatCmd, askCmd, indexCmd, initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errAskFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// signalContext is cancelled on interrupt or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// configPath returns the explicit or default configuration file path
func configPath(cmd *cobra.Command) (string, bool) {
	if configFile != "" {
		return configFile, cmd.Flags().Changed("config")
	}
	exePath, err := os.Executable()
	if err != nil {
		return config.DefaultConfigName, false
	}
	return config.GetDefaultConfigPath(exePath), false
}

// loadConfig applies file, environment and command line settings
func loadConfig(cmd *cobra.Command, flags config.CLIFlags) (*config.Config, string, config.CLIFlags, error) {
	path, set := configPath(cmd)
	flags.ConfigFile = path
	flags.ConfigFileSet = set

	cfg, err := config.LoadConfig(path, flags)
	if err != nil {
		return nil, "", flags, err
	}
	logging.Debug("config_loaded", "path", path, "exists", config.ConfigFileExists(path))
	return cfg, path, flags, nil
}

// services holds the collaborators shared by every session of a command
type services struct {
	opts    pipeline.Options
	history *history.Store
	metrics metrics.Backend
}

// newServices builds the language model client, the embedding provider, the
// history store and the metrics backend from cfg
func newServices(ctx context.Context, cfg *config.Config, current func() *config.Config) (*services, error) {
	completer, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create language model client: %w", err)
	}

	provider, err := embedding.NewProvider(embedding.ConfigFrom(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	rt := &services{
		opts: pipeline.Options{
			Config:     current,
			Completer:  completer,
			Embeddings: provider,
		},
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		rt.history = store
		rt.opts.History = store
	}

	if cfg.Metrics.Backend == "datadog" {
		backend := datadog.NewBackend(ctx, datadog.OptionsFrom(cfg.Metrics))
		rt.metrics = backend
		metrics.SetBackend(backend)
	}

	logging.Info("services_ready",
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
		"embedding_provider", cfg.Embedding.Provider,
		"store_backend", cfg.Store.Backend,
		"history", cfg.History.Enabled,
		"metrics", cfg.Metrics.Backend,
	)
	return rt, nil
}

// Close flushes metrics and closes the history store
func (rt *services) Close() {
	if rt.metrics != nil {
		metrics.SetBackend(nil)
		if err := rt.metrics.Close(); err != nil {
			logging.Warn("metrics_close_failed", "error", err)
		}
	}
	if rt.history != nil {
		if err := rt.history.Close(); err != nil {
			logging.Warn("history_close_failed", "error", err)
		}
	}
}

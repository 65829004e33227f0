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
	"fmt"

	"github.com/spf13/cobra"

	"pgedge-dataset-agent/internal/api"
	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/logging"
	"pgedge-dataset-agent/internal/pipeline"
	"pgedge-dataset-agent/internal/watch"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `serve exposes dataset sessions over HTTP. Clients upload a dataset to
create a session and then post questions to it. The configuration file is
watched and the query, render and prompt settings apply to the next question
after it changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	flags := config.CLIFlags{
		HTTPAddr:    serveAddr,
		HTTPAddrSet: cmd.Flags().Changed("addr"),
	}
	cfg, path, flags, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rc := config.NewReloadableConfig(cfg, path, flags)
	if config.ConfigFileExists(path) {
		watcher, err := watch.NewFileWatcher(path, rc.Reload)
		if err != nil {
			logging.Warn("config_watch_failed", "path", path, "error", err)
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}
	rc.OnReload(func(c *config.Config) {
		logging.Info("config_applied",
			"render_enabled", c.Render.Enabled,
			"sanitizer_max_rows", c.Sanitizer.MaxRows,
			"fuzzy_enabled", c.Fuzzy.Enabled,
		)
	})

	rt, err := newServices(ctx, cfg, rc.Get)
	if err != nil {
		return err
	}
	defer rt.Close()

	manager := pipeline.NewManager(rt.opts)
	defer manager.Close()

	server := api.NewServer(cfg.HTTP, manager)
	fmt.Printf("pgEdge Natural Language Agent listening on %s\n", cfg.HTTP.Address)
	return server.Run(ctx, cfg.HTTP.Address)
}

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
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/embedding"
	"pgedge-dataset-agent/internal/retrieval"
)

var (
	indexDocs string
	indexPath string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build or refresh the reference document index",
	Long: `index converts the documents under the docs directory into chunks,
embeds them with the configured embedding provider and stores them in a
SQLite file. Unchanged files are skipped and deleted files are removed, so
running it again only processes what changed.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexDocs, "docs", "", "Directory of reference documents (overrides retrieval.docs_dir)")
	indexCmd.Flags().StringVar(&indexPath, "index", "", "Index file (overrides retrieval.index_path)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd, config.CLIFlags{
		DocsDir:      indexDocs,
		DocsDirSet:   cmd.Flags().Changed("docs"),
		IndexPath:    indexPath,
		IndexPathSet: cmd.Flags().Changed("index"),
	})
	if err != nil {
		return err
	}
	if cfg.Retrieval.DocsDir == "" {
		return fmt.Errorf("no docs directory configured (use --docs or retrieval.docs_dir)")
	}
	if cfg.Retrieval.IndexPath == "" || cfg.Retrieval.IndexPath == ":memory:" {
		return fmt.Errorf("an index file is required (use --index or retrieval.index_path)")
	}

	provider, err := embedding.NewProvider(embedding.ConfigFrom(cfg.Embedding))
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	start := time.Now()
	ix, err := retrieval.Open(ctx, retrieval.OptionsFrom(cfg.Retrieval), provider)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	defer ix.Close()

	ranking := "BM25"
	if provider != nil {
		ranking = provider.ProviderName() + "/" + provider.ModelName()
	}
	printIndexStats(cfg.Retrieval, ranking, ix.Stats(), time.Since(start))
	return nil
}

func printIndexStats(cfg config.RetrievalConfig, ranking string, stats retrieval.Stats, elapsed time.Duration) {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("Reference document index")
	t.AppendRows([]table.Row{
		{"Docs directory", cfg.DocsDir},
		{"Index file", cfg.IndexPath},
		{"Ranking", ranking},
		{"Files", stats.Files},
		{"Indexed", stats.Indexed},
		{"Unchanged", stats.Skipped},
		{"Removed", stats.Removed},
		{"Chunks", stats.Chunks},
		{"Duration", elapsed.Round(time.Millisecond).String()},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	fmt.Println(t.Render())
}

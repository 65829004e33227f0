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
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pgedge-dataset-agent/internal/chat"
	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/pipeline"
)

var (
	chatDataset    string
	chatWatch      bool
	chatNoColor    bool
	chatNoMarkdown bool
	chatImageDir   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively in the terminal",
	Long: `chat starts an interactive session. Load a dataset with --dataset or the
/upload command, then type questions. Result rows are shown as a table and
charts are written as PNG files to the image directory.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatDataset, "dataset", "", "CSV, TSV or XLSX file to load at start")
	chatCmd.Flags().BoolVar(&chatWatch, "watch", false, "Reload the dataset when the file changes")
	chatCmd.Flags().BoolVar(&chatNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().BoolVar(&chatNoMarkdown, "no-markdown", false, "Print answers as plain text")
	chatCmd.Flags().StringVar(&chatImageDir, "image-dir", "charts", "Directory for chart PNG files")
}

func runChat(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd, config.CLIFlags{})
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rt, err := newServices(ctx, cfg, pipeline.StaticConfig(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()

	session := pipeline.NewSession(rt.opts)
	defer session.Close()

	client := chat.NewClient(session, chat.Config{
		DatasetPath: chatDataset,
		ImageDir:    chatImageDir,
		HistoryFile: historyFile(),
		Watch:       chatWatch,
		NoColor:     chatNoColor,
		NoMarkdown:  chatNoMarkdown,
	})
	return client.Run(ctx)
}

// historyFile keeps readline history in the home directory
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pgedge-dataset-agent-history")
}

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
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pgedge-dataset-agent/internal/config"
	"pgedge-dataset-agent/internal/dataset"
	"pgedge-dataset-agent/internal/pipeline"
)

var (
	askDataset string
	askImage   string
	askSQL     bool
)

var askCmd = &cobra.Command{
	Use:   "ask --dataset FILE QUESTION...",
	Short: "Answer a single question about a dataset",
	Long: `ask loads the dataset, answers one question and prints the narrative.
When a chart is drawn and --image is given it is written there as a PNG file.
The exit code is 1 when the question could not be answered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askDataset, "dataset", "", "CSV, TSV or XLSX file to query")
	askCmd.Flags().StringVar(&askImage, "image", "", "Write the chart to this PNG file")
	askCmd.Flags().BoolVar(&askSQL, "show-sql", false, "Print the executed query to stderr")
	_ = askCmd.MarkFlagRequired("dataset") //nolint:errcheck // flag is defined above
}

func runAsk(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, _, _, err := loadConfig(cmd, config.CLIFlags{})
	if err != nil {
		return err
	}

	ds, err := dataset.Load(askDataset)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", askDataset, err)
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

	if _, err := session.Upload(ctx, ds); err != nil {
		return fmt.Errorf("failed to upload %s: %w", askDataset, err)
	}

	art := session.Ask(ctx, strings.Join(args, " "))
	if askSQL && art.SQL != "" {
		fmt.Fprintln(os.Stderr, art.SQL)
	}
	fmt.Println(art.Text)
	if art.Notice != "" {
		fmt.Fprintln(os.Stderr, art.Notice)
	}

	if art.HasImage() && askImage != "" {
		if err := writeImage(askImage, art.Image); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Chart written to %s\n", askImage)
	}

	if art.State == pipeline.Failed {
		return errAskFailed
	}
	return nil
}

func writeImage(path, image string) error {
	data, err := base64.StdEncoding.DecodeString(image)
	if err != nil {
		return fmt.Errorf("invalid chart data: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // chart images are not sensitive
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

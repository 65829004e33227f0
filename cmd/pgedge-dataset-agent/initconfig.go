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

	"pgedge-dataset-agent/internal/config"
)

var initForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config [PATH]",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInitConfig,
}

func init() {
	initConfigCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path := config.DefaultConfigName
	if len(args) == 1 {
		path = args[0]
	}
	if config.ConfigFileExists(path) && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.SaveConfig(path, config.Default()); err != nil {
		return err
	}
	fmt.Printf("Configuration written to %s\n", path)
	return nil
}

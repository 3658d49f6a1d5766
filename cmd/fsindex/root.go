// Command fsindex is the cobra-based CLI entrypoint over the core,
// grounded on Yakitrak-obsidian-cli's cmd/root.go root-command-plus-subcommands
// layout and rclone's own one-subdirectory-per-subcommand convention.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localidx/fsindex/internal/config"
)

var (
	rootDir string
	kvPath  string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "fsindex",
	Short:   "fsindex - file-metadata indexing and retrieval core",
	Long:    "fsindex serves directory listings and ranked name search over a watched filesystem subtree, backed by a persistent three-tier metadata index.",
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if rootDir == "" {
			return fmt.Errorf("--root is required")
		}
		cfg = config.Default(rootDir, kvPath)
		return nil
	},
}

// Execute runs the CLI, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "watched root directory")
	rootCmd.PersistentFlags().StringVar(&kvPath, "kv", "fsindex.db", "path to the bbolt-backed index file")
}

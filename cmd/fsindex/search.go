package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localidx/fsindex/internal/core"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/ise"
	"github.com/localidx/fsindex/internal/kvstore"
)

var (
	searchMode  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "search the index by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kv, err := kvstore.Open(kvPath)
		if err != nil {
			return err
		}
		defer kv.Close()

		c := core.New(cfg, fsadapter.NewLocal(rootDir), kv)
		ctx := context.Background()
		if err := c.Init(ctx); err != nil {
			return err
		}
		defer c.Close()

		mode := ise.Progressive
		switch searchMode {
		case "instant":
			mode = ise.Instant
		case "comprehensive":
			mode = ise.Comprehensive
		}

		result, err := c.Search(ctx, args[0], core.SearchOptions{Mode: mode, Limit: searchLimit})
		if err != nil {
			return err
		}
		for _, e := range result.Results {
			fmt.Printf("%s\t%s\n", e.Priority, e.Full)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "progressive", "instant|progressive|comprehensive")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 100, "maximum results")
	rootCmd.AddCommand(searchCmd)
}

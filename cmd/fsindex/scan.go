package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localidx/fsindex/internal/core"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run the progressive initial scan to completion and exit",
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

		fmt.Println("scan complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

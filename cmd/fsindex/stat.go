package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localidx/fsindex/internal/core"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
)

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "print the indexed Entry for a path",
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

		e, err := c.Stat(ctx, args[0])
		if err != nil {
			return err
		}
		if e == nil {
			fmt.Println("not indexed")
			return nil
		}
		fmt.Printf("%+v\n", *e)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/localidx/fsindex/internal/core"
	"github.com/localidx/fsindex/internal/fsadapter"
	"github.com/localidx/fsindex/internal/kvstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the watcher and background scheduler until interrupted",
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

		fmt.Printf("fsindex serving %s (kv=%s), press ctrl-c to stop\n", rootDir, kvPath)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Println("shutting down")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexgraph/lexgraph/internal/app"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/spf13/cobra"
)

func newDeleteCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every ingested document, the keyword index, and the graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to delete all data without --confirm")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Locks.WithLease(ctx, "ingest", leaselock.Options{}, func(ctx context.Context) error {
				return a.Store.DeleteAll(ctx)
			})
			if errors.Is(err, leaselock.ErrBusy) {
				return fmt.Errorf("an ingestion is currently running, try again later")
			}
			if err != nil {
				return err
			}
			// Cached embeddings stay valid across deletes, but cached search
			// results reference removed chunks.
			if err := a.Cache.Clear(ctx, cache.NamespaceSearchResult); err != nil {
				logger.Warn("Failed to clear cached search results", "err", err)
			}
			fmt.Println("All stored documents and graph data deleted.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "confirm deletion of all data")
	return cmd
}

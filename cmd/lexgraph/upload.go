package main

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/internal/app"
	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/loader"
	"github.com/lexgraph/lexgraph/pkg/loader/pdf"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/spf13/cobra"
)

func newUploadCmd() *cobra.Command {
	var (
		chunkSize            int
		chunkOverlap         int
		pagesPerBatch        int
		maxConcurrentBatches int
		clear                bool
	)

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Ingest a document into the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("chunk-size") {
				cfg.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("chunk-overlap") {
				cfg.ChunkOverlap = chunkOverlap
			}
			if cmd.Flags().Changed("pages-per-batch") {
				cfg.PagesPerBatch = pagesPerBatch
			}
			if cmd.Flags().Changed("max-concurrent-batches") {
				cfg.MaxConcurrentBatches = maxConcurrentBatches
			}
			if cfg.ChunkOverlap >= cfg.ChunkSize {
				return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
					errConfig, cfg.ChunkOverlap, cfg.ChunkSize)
			}

			ctx := cmd.Context()
			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var docLoader loader.DocumentLoader = loader.TextLoader{}
			if loader.IsPDF(path) {
				docLoader = pdf.NewPDFLoader(cfg.PagesPerBatch)
			}
			batches, err := docLoader.LoadBatches(ctx, path)
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				return fmt.Errorf("document %s contains no text", path)
			}

			documentID, err := util.NewDocumentID(path)
			if err != nil {
				return err
			}

			// One writer at a time: uploads queue behind each other and
			// behind a running delete.
			var stats common.IngestStats
			err = a.Locks.WithLease(ctx, "ingest", leaselock.Options{Wait: true}, func(ctx context.Context) error {
				if clear {
					if err := a.Store.DeleteAll(ctx); err != nil {
						return err
					}
				}
				stats, err = a.Orchestrator.Ingest(ctx, documentID, batches)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Printf("Document:      %s\n", stats.DocumentID)
			fmt.Printf("Batches:       %d\n", stats.Batches)
			fmt.Printf("Chunks:        %d\n", stats.Chunks)
			fmt.Printf("Tokens:        %d\n", stats.Tokens)
			fmt.Printf("Entities:      %d\n", stats.Entities)
			fmt.Printf("Relationships: %d\n", stats.Relationships)
			for _, failure := range stats.Failures {
				logger.Warn("Batch failed", "batch", failure.Batch, "stage", failure.Stage, "err", failure.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "chunk size in characters")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 200, "overlap between consecutive chunks in characters")
	cmd.Flags().IntVar(&pagesPerBatch, "pages-per-batch", 25, "PDF pages per ingestion batch")
	cmd.Flags().IntVar(&maxConcurrentBatches, "max-concurrent-batches", 3, "maximum batches processed concurrently")
	cmd.Flags().BoolVar(&clear, "clear", false, "clear all stores before ingesting")
	return cmd
}

package main

import (
	"fmt"

	"github.com/lexgraph/lexgraph/internal/app"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/query"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	var (
		topK          int
		maxDepth      int
		noHybrid      bool
		vectorWeight  float64
		keywordWeight float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Answer a question over the indexed corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			params := a.Engine.Defaults()
			if cmd.Flags().Changed("top-k") {
				params.TopK = topK
			}
			if cmd.Flags().Changed("max-depth") {
				params.MaxDepth = maxDepth
			}
			if noHybrid {
				params.Hybrid = false
			}
			if cmd.Flags().Changed("vector-weight") {
				params.VectorWeight = vectorWeight
			}
			if cmd.Flags().Changed("keyword-weight") {
				params.KeywordWeight = keywordWeight
			}

			result, err := a.Engine.Search(ctx, args[0], params)
			if err != nil {
				return err
			}

			printResult(result, params)
			return nil
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 5, "number of chunks to keep after fusion")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "graph expansion depth, 0 keeps only directly mentioned entities")
	cmd.Flags().BoolVar(&noHybrid, "no-hybrid", false, "disable keyword search and rank by vector similarity only")
	cmd.Flags().Float64Var(&vectorWeight, "vector-weight", 0.7, "weight of vector similarity in the combined score")
	cmd.Flags().Float64Var(&keywordWeight, "keyword-weight", 0.3, "weight of keyword relevance in the combined score")
	return cmd
}

func printResult(result *common.SearchResult, params query.Params) {
	fmt.Println(result.Answer)
	if len(result.Chunks) == 0 {
		return
	}

	fmt.Printf("\nSources (%s search):\n", result.SearchType)
	for i, sc := range result.Chunks {
		fmt.Printf("  [%d] %s (score %.3f)\n", i+1, sc.Chunk.ID, sc.CombinedScore)
	}
	if len(result.Entities) > 0 {
		fmt.Printf("Entities: %d, relationships: %d (depth %d)\n",
			len(result.Entities), len(result.Relationships), params.MaxDepth)
	}
}

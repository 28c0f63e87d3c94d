package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/logger/console"

	"github.com/spf13/cobra"
)

// errConfig marks failures the user has to fix in the environment or flags
// rather than retry. They exit with code 2.
var errConfig = errors.New("invalid configuration")

func main() {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errConfig) || errors.Is(err, common.ErrDimensionMismatch) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lexgraph",
		Short:         "Ingest documents and answer questions over them",
		Long:          "lexgraph ingests legal documents into a combined vector, keyword, and knowledge-graph index and answers questions over the indexed corpus.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newUploadCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newDeleteCmd())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errConfig, err)
	}
	if cfg.Debug {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: true}))
	}
	return cfg, nil
}

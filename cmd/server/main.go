package main

import (
	"context"

	"github.com/lexgraph/lexgraph/internal/app"
	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/internal/server"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/logger/console"
)

func main() {
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{}))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}
	if cfg.Debug {
		logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{Debug: true}))
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize", "err", err)
	}
	defer a.Close()

	srv, err := server.NewServer(server.NewServerParams{
		Engine:        a.Engine,
		Orchestrator:  a.Orchestrator,
		Cleaner:       a.Store,
		Locks:         a.Locks,
		AIClient:      a.AIClient,
		PagesPerBatch: cfg.PagesPerBatch,
		Port:          cfg.Port,
	})
	if err != nil {
		logger.Fatal("Failed to create server", "err", err)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server failed", "err", err)
	}
}

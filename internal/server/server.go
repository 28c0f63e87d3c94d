package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/ingest"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/loader"
	"github.com/lexgraph/lexgraph/pkg/loader/pdf"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/query"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// Cleaner clears every store so the corpus can be rebuilt from scratch.
type Cleaner interface {
	DeleteAll(ctx context.Context) error
}

// Server exposes the ingestion and search pipeline over HTTP.
type Server struct {
	engine        *query.Engine
	orchestrator  *ingest.Orchestrator
	cleaner       Cleaner
	locks         *leaselock.Client
	aiClient      ai.GraphAIClient
	pagesPerBatch int
	port          string
}

// NewServerParams contains configuration for creating a Server. A nil Locks
// client skips cross-process write serialization.
type NewServerParams struct {
	Engine        *query.Engine
	Orchestrator  *ingest.Orchestrator
	Cleaner       Cleaner
	Locks         *leaselock.Client
	AIClient      ai.GraphAIClient
	PagesPerBatch int
	Port          string
}

func NewServer(params NewServerParams) (*Server, error) {
	if params.Engine == nil || params.Orchestrator == nil {
		return nil, fmt.Errorf("engine and orchestrator are required")
	}
	port := params.Port
	if port == "" {
		port = "8080"
	}
	return &Server{
		engine:        params.Engine,
		orchestrator:  params.Orchestrator,
		cleaner:       params.Cleaner,
		locks:         params.Locks,
		aiClient:      params.AIClient,
		pagesPerBatch: params.PagesPerBatch,
		port:          port,
	}, nil
}

// Run serves until the context is canceled or an interrupt arrives, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("16M"))

	s.registerRoutes(e)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", s.port)
		if err := e.Start(":" + s.port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
		return err
	}
	return nil
}

func (s *Server) loaderFor(path string) loader.DocumentLoader {
	if loader.IsPDF(path) {
		return pdf.NewPDFLoader(s.pagesPerBatch)
	}
	return loader.TextLoader{}
}

// withWriteLease serializes store-mutating operations across processes.
// Without a lock client fn runs directly.
func (s *Server) withWriteLease(ctx context.Context, wait bool, fn func(ctx context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	return s.locks.WithLease(ctx, "ingest", leaselock.Options{Wait: wait}, fn)
}

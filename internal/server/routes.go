package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	apiRoutes := e.Group("/api")
	apiRoutes.POST("/search", s.SearchHandler)
	apiRoutes.POST("/documents", s.UploadHandler)
	apiRoutes.DELETE("/documents", s.DeleteAllHandler)
	apiRoutes.GET("/metrics", s.MetricsHandler)
}

type searchRequest struct {
	Query         string   `json:"query" validate:"required"`
	TopK          *int     `json:"top_k" validate:"omitempty,gte=0"`
	MaxDepth      *int     `json:"max_depth" validate:"omitempty,gte=0"`
	Hybrid        *bool    `json:"hybrid"`
	VectorWeight  *float64 `json:"vector_weight" validate:"omitempty,gte=0"`
	KeywordWeight *float64 `json:"keyword_weight" validate:"omitempty,gte=0"`
}

// SearchHandler answers a question over the ingested corpus. Omitted
// parameters fall back to the configured defaults.
func (s *Server) SearchHandler(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	params := s.engine.Defaults()
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.MaxDepth != nil {
		params.MaxDepth = *req.MaxDepth
	}
	if req.Hybrid != nil {
		params.Hybrid = *req.Hybrid
	}
	if req.VectorWeight != nil {
		params.VectorWeight = *req.VectorWeight
	}
	if req.KeywordWeight != nil {
		params.KeywordWeight = *req.KeywordWeight
	}

	result, err := s.engine.Search(c.Request().Context(), req.Query, params)
	if err != nil {
		logger.Error("Search failed", "query", req.Query, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, result)
}

type uploadRequest struct {
	Path string `json:"path" validate:"required"`
}

// UploadHandler ingests one document from a server-local path.
func (s *Server) UploadHandler(c echo.Context) error {
	var req uploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	batches, err := s.loaderFor(req.Path).LoadBatches(ctx, req.Path)
	if err != nil {
		logger.Error("Failed to load document", "path", req.Path, "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, "failed to load document")
	}

	documentID, err := util.NewDocumentID(req.Path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create document ID")
	}

	var stats common.IngestStats
	err = s.withWriteLease(ctx, true, func(ctx context.Context) error {
		stats, err = s.orchestrator.Ingest(ctx, documentID, batches)
		return err
	})
	if err != nil {
		logger.Error("Ingestion failed", "document", documentID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// DeleteAllHandler clears every store.
func (s *Server) DeleteAllHandler(c echo.Context) error {
	if s.cleaner == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no store configured")
	}
	err := s.withWriteLease(c.Request().Context(), false, func(ctx context.Context) error {
		return s.cleaner.DeleteAll(ctx)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, "an ingestion is currently running")
	}
	if err != nil {
		logger.Error("Failed to clear stores", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear stores")
	}
	return c.NoContent(http.StatusNoContent)
}

// MetricsHandler reports accumulated AI model usage.
func (s *Server) MetricsHandler(c echo.Context) error {
	if s.aiClient == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "no AI client configured")
	}
	return c.JSON(http.StatusOK, s.aiClient.GetMetrics())
}

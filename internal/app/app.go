package app

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/internal/config"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/ai/ollama"
	"github.com/lexgraph/lexgraph/pkg/ai/openai"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/chunker"
	"github.com/lexgraph/lexgraph/pkg/embed"
	"github.com/lexgraph/lexgraph/pkg/extract"
	"github.com/lexgraph/lexgraph/pkg/ingest"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/query"
	storepgx "github.com/lexgraph/lexgraph/pkg/store/pgx"
)

// App wires the configured components of the pipeline together. Both the
// server and the CLI build one App and use the parts they need.
type App struct {
	Config       *config.Config
	AIClient     ai.GraphAIClient
	Store        *storepgx.Store
	Cache        *cache.Cache
	Engine       *query.Engine
	Orchestrator *ingest.Orchestrator
	Locks        *leaselock.Client

	redis *cache.RedisBackend
}

// Build connects to the database and cache backend and constructs the full
// pipeline from the configuration.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	client, err := newAIClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}

	st, err := storepgx.NewStore(ctx, storepgx.NewStoreParams{
		DatabaseURL:    cfg.DatabaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
		EmbeddingDim:   cfg.EmbeddingDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	var backend cache.Backend
	var redis *cache.RedisBackend
	if cfg.RedisURL != "" {
		redis, err = cache.NewRedisBackend(ctx, cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		backend = redis
	} else {
		logger.Debug("No Redis configured, using in-memory cache")
		backend = cache.NewMemoryBackend()
	}
	c := cache.NewCache(cache.NewCacheParams{
		Backend: backend,
		Model:   cfg.EmbeddingModel,
	})

	chk, err := chunker.NewChunker(chunker.NewChunkerParams{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	embedder := embed.NewGenerator(embed.NewGeneratorParams{
		Client:     client,
		Cache:      c,
		MaxRetries: cfg.MaxRetries,
	})
	extractor := extract.NewExtractor(extract.NewExtractorParams{
		Client:     client,
		Cache:      c,
		MaxRetries: cfg.MaxRetries,
	})

	orchestrator, err := ingest.NewOrchestrator(ingest.NewOrchestratorParams{
		Chunker:              chk,
		Embedder:             embedder,
		Extractor:            extractor,
		Vector:               st,
		Graph:                st,
		Keyword:              st.Keyword(),
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	engine, err := query.NewEngine(query.NewEngineParams{
		Client:     client,
		Embedder:   embedder,
		Vector:     st,
		Keyword:    st.Keyword(),
		Graph:      st,
		Cache:      c,
		MaxRetries: cfg.MaxRetries,
		Defaults: query.Params{
			TopK:          cfg.TopK,
			MaxDepth:      cfg.MaxDepth,
			Hybrid:        cfg.HybridSearch,
			VectorWeight:  cfg.VectorWeight,
			KeywordWeight: cfg.KeywordWeight,
		},
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &App{
		Config:       cfg,
		AIClient:     client,
		Store:        st,
		Cache:        c,
		Engine:       engine,
		Orchestrator: orchestrator,
		Locks:        st.LeaseLock(),
		redis:        redis,
	}, nil
}

func newAIClient(cfg *config.Config) (ai.GraphAIClient, error) {
	switch cfg.AIProvider {
	case "ollama":
		return ollama.NewGraphOllamaClient(ollama.NewGraphOllamaClientParams{
			EmbeddingModel:        cfg.EmbeddingModel,
			EmbeddingDim:          cfg.EmbeddingDim,
			ExtractionModel:       cfg.ExtractionModel,
			AnswerModel:           cfg.AnswerModel,
			BaseURL:               cfg.BaseURL,
			APIKey:                cfg.APIKey,
			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		})
	default:
		return openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
			EmbeddingModel:        cfg.EmbeddingModel,
			EmbeddingDim:          cfg.EmbeddingDim,
			ExtractionModel:       cfg.ExtractionModel,
			AnswerModel:           cfg.AnswerModel,
			BaseURL:               cfg.BaseURL,
			APIKey:                cfg.APIKey,
			MaxConcurrentRequests: cfg.MaxConcurrentRequests,
		}), nil
	}
}

// Close releases the store and cache connections.
func (a *App) Close() {
	a.Store.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("Failed to close Redis connection", "err", err)
		}
	}
}

package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

const answerRetryBaseDelay = 500 * time.Millisecond

// Embedder produces the embedding for a search query.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Params control one search: how many chunks to keep after fusion, how far
// to expand the graph, and how vector and keyword relevance are weighted.
type Params struct {
	TopK          int     `json:"top_k"`
	MaxDepth      int     `json:"max_depth"`
	Hybrid        bool    `json:"hybrid"`
	VectorWeight  float64 `json:"vector_weight"`
	KeywordWeight float64 `json:"keyword_weight"`
}

// Engine answers questions over the ingested corpus: retrieve by vector and
// keyword relevance, fuse, expand the entity graph around the hits, and
// synthesize an answer from the combined context. Full results are cached
// per normalized query and parameter set.
type Engine struct {
	client     ai.GraphAIClient
	embedder   Embedder
	vector     store.VectorStore
	keyword    store.KeywordIndex
	graph      store.GraphStore
	cache      *cache.Cache
	maxRetries int
	defaults   Params
}

// NewEngineParams contains configuration for creating an Engine. Keyword and
// Graph may be nil; searches then run vector-only without graph expansion.
type NewEngineParams struct {
	Client     ai.GraphAIClient
	Embedder   Embedder
	Vector     store.VectorStore
	Keyword    store.KeywordIndex
	Graph      store.GraphStore
	Cache      *cache.Cache
	MaxRetries int
	Defaults   Params
}

func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Client == nil || params.Embedder == nil || params.Vector == nil {
		return nil, errors.New("AI client, embedder, and vector store are required")
	}
	c := params.Cache
	if c == nil {
		c = cache.NewCache(cache.NewCacheParams{})
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Engine{
		client:     params.Client,
		embedder:   params.Embedder,
		vector:     params.Vector,
		keyword:    params.Keyword,
		graph:      params.Graph,
		cache:      c,
		maxRetries: maxRetries,
		defaults:   params.Defaults,
	}, nil
}

// Defaults returns the engine's default search parameters.
func (e *Engine) Defaults() Params {
	return e.defaults
}

// Search runs the full query pipeline. Zero-valued params fall back to the
// engine defaults; TopK 0 after fallback returns an empty result without any
// model or store calls.
func (e *Engine) Search(ctx context.Context, query string, params Params) (*common.SearchResult, error) {
	params = e.fillDefaults(params)
	if params.TopK <= 0 {
		return &common.SearchResult{Query: query, SearchType: e.searchType(params)}, nil
	}

	cacheKey := fmt.Sprintf("%s|k=%d|d=%d|h=%t|vw=%g|kw=%g",
		cache.NormalizeQuery(query),
		params.TopK, params.MaxDepth, params.Hybrid, params.VectorWeight, params.KeywordWeight,
	)
	var cached common.SearchResult
	if e.cache.GetJSON(ctx, cache.NamespaceSearchResult, cacheKey, &cached) {
		logger.Debug("Search cache hit", "query", query)
		return &cached, nil
	}

	embedding, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, searchType, err := e.retrieve(ctx, query, embedding, params)
	if err != nil {
		return nil, err
	}

	entities, relationships, err := e.expandGraph(ctx, chunks, params.MaxDepth)
	if err != nil {
		return nil, err
	}

	contextText := buildContext(chunks, entities, relationships)
	answer, err := e.answer(ctx, query, contextText)
	if err != nil {
		return nil, err
	}

	result := &common.SearchResult{
		Query:         query,
		Answer:        answer,
		Context:       contextText,
		Chunks:        chunks,
		Entities:      entities,
		Relationships: relationships,
		SearchType:    searchType,
	}
	e.cache.SetJSON(ctx, cache.NamespaceSearchResult, cacheKey, result)
	return result, nil
}

func (e *Engine) fillDefaults(params Params) Params {
	if params == (Params{}) {
		return e.defaults
	}
	if params.VectorWeight == 0 && params.KeywordWeight == 0 {
		params.VectorWeight = e.defaults.VectorWeight
		params.KeywordWeight = e.defaults.KeywordWeight
	}
	return params
}

func (e *Engine) searchType(params Params) string {
	if params.Hybrid && e.keyword != nil {
		return "hybrid"
	}
	return "vector"
}

// retrieve over-fetches 2*TopK candidates from each source in parallel and
// fuses them down to TopK. A keyword failure degrades to vector-only rather
// than failing the search.
func (e *Engine) retrieve(ctx context.Context, query string, embedding []float32, params Params) ([]common.ScoredChunk, string, error) {
	fetchK := params.TopK * 2
	searchType := e.searchType(params)

	var vectorHits, keywordHits []common.ScoredChunk
	var keywordErr error

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vectorHits, err = e.vector.Search(gCtx, embedding, fetchK)
		if err != nil {
			return fmt.Errorf("vector search failed: %w", err)
		}
		return nil
	})
	if searchType == "hybrid" {
		g.Go(func() error {
			keywordHits, keywordErr = e.keyword.Search(gCtx, query, fetchK)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}
	if keywordErr != nil {
		logger.Warn("Keyword search failed, falling back to vector-only", "err", keywordErr)
		keywordHits = nil
		searchType = "degraded"
	}

	vectorWeight, keywordWeight := params.VectorWeight, params.KeywordWeight
	if len(keywordHits) == 0 {
		vectorWeight, keywordWeight = 1, 0
	}
	return fuse(vectorHits, keywordHits, vectorWeight, keywordWeight, params.TopK), searchType, nil
}

// expandGraph loads the entities mentioned in the retrieved chunks and walks
// their neighborhood up to maxDepth. Without a graph store the result is
// empty and the search still succeeds.
func (e *Engine) expandGraph(ctx context.Context, chunks []common.ScoredChunk, maxDepth int) ([]common.Entity, []common.Relationship, error) {
	if e.graph == nil || len(chunks) == 0 {
		return nil, nil, nil
	}

	chunkIDs := make([]string, len(chunks))
	for i, sc := range chunks {
		chunkIDs[i] = sc.Chunk.ID
	}
	seeds, err := e.graph.EntitiesForChunks(ctx, chunkIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load entities for retrieved chunks: %w", err)
	}
	if len(seeds) == 0 {
		return nil, nil, nil
	}

	entities, relationships, err := e.graph.Neighbors(ctx, seeds, maxDepth)
	if err != nil {
		return nil, nil, fmt.Errorf("graph expansion failed: %w", err)
	}
	return entities, relationships, nil
}

func (e *Engine) answer(ctx context.Context, query, contextText string) (string, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, query)
	answer, err := util.RetryBackoff(ctx, e.maxRetries, answerRetryBaseDelay, func(ctx context.Context) (string, error) {
		return e.client.GenerateCompletion(ctx, prompt, ai.WithSystemPrompts(AnswerPrompt))
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/lexgraph/lexgraph/internal/util"
	"github.com/lexgraph/lexgraph/pkg/ai"
	"github.com/lexgraph/lexgraph/pkg/cache"
	"github.com/lexgraph/lexgraph/pkg/logger"
)

const retryBaseDelay = 500 * time.Millisecond

// Generator produces embeddings through the AI client with a write-through
// cache in front. Re-embedding identical text while the cache is warm
// returns the stored vector without a second model call.
type Generator struct {
	client     ai.GraphAIClient
	cache      *cache.Cache
	maxRetries int
}

// NewGeneratorParams contains configuration for creating a Generator.
type NewGeneratorParams struct {
	Client     ai.GraphAIClient
	Cache      *cache.Cache
	MaxRetries int
}

// NewGenerator creates a Generator. A nil cache degrades to an always-miss
// cache.
func NewGenerator(params NewGeneratorParams) *Generator {
	c := params.Cache
	if c == nil {
		c = cache.NewCache(cache.NewCacheParams{})
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Generator{
		client:     params.Client,
		cache:      c,
		maxRetries: maxRetries,
	}
}

// Result is the per-item outcome of a batch embedding. Exactly one of
// Embedding and Err is set.
type Result struct {
	Embedding []float32
	Err       error
}

// Embed returns the embedding for the exact text, consulting the cache first
// and writing through on miss. Transient model failures are retried with
// bounded backoff.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	var cached []float32
	if g.cache.GetJSON(ctx, cache.NamespaceEmbedding, text, &cached) {
		return cached, nil
	}

	vec, err := util.RetryBackoff(ctx, g.maxRetries, retryBaseDelay, func(ctx context.Context) ([]float32, error) {
		return g.client.GenerateEmbedding(ctx, []byte(text))
	})
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	g.cache.SetJSON(ctx, cache.NamespaceEmbedding, text, vec)
	return vec, nil
}

// EmbedQuery embeds a user query. Queries are normalized before keying so
// that trivially different phrasings of the same query share a cache entry.
func (g *Generator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return g.Embed(ctx, cache.NormalizeQuery(query))
}

// EmbedBatch embeds texts preserving input order. Cache hits are returned
// without a model call; misses go to the model in one batched request. If
// the batched request fails, each miss is retried individually so that one
// bad item does not abort its siblings; failures are reported per item.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	missIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		var cached []float32
		if g.cache.GetJSON(ctx, cache.NamespaceEmbedding, text, &cached) {
			results[i] = Result{Embedding: cached}
			continue
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return results
	}

	inputs := make([][]byte, len(missIdx))
	for j, i := range missIdx {
		inputs[j] = []byte(texts[i])
	}

	vecs, err := util.RetryBackoff(ctx, g.maxRetries, retryBaseDelay, func(ctx context.Context) ([][]float32, error) {
		return g.client.GenerateEmbeddings(ctx, inputs)
	})
	if err == nil && len(vecs) == len(missIdx) {
		for j, i := range missIdx {
			results[i] = Result{Embedding: vecs[j]}
			g.cache.SetJSON(ctx, cache.NamespaceEmbedding, texts[i], vecs[j])
		}
		return results
	}

	logger.Warn("Batched embedding request failed, falling back to per-item calls", "items", len(missIdx), "err", err)
	for _, i := range missIdx {
		vec, itemErr := g.Embed(ctx, texts[i])
		if itemErr != nil {
			results[i] = Result{Err: itemErr}
			continue
		}
		results[i] = Result{Embedding: vec}
	}
	return results
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/embed"
	"github.com/lexgraph/lexgraph/pkg/extract"
	"github.com/lexgraph/lexgraph/pkg/logger"
	"github.com/lexgraph/lexgraph/pkg/store"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Chunker splits one batch of document text into chunks.
type Chunker interface {
	Chunk(documentID string, batchIndex int, text string) []common.Chunk
}

// Embedder produces embeddings for a batch of chunk texts, one Result per
// input in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) []embed.Result
}

// Extractor produces entities and relationships for a batch of chunks, one
// Result per chunk in order.
type Extractor interface {
	ExtractBatch(ctx context.Context, chunks []common.Chunk) []extract.Result
}

// Orchestrator runs the ingestion pipeline: each text batch is chunked, then
// embedded and extracted concurrently, then written to the vector store,
// keyword index, and graph store concurrently. A failed stage is recorded as
// a BatchFailure and never aborts sibling batches; only a dimension mismatch
// or context cancellation stops the run.
type Orchestrator struct {
	chunker     Chunker
	embedder    Embedder
	extractor   Extractor
	vector      store.VectorStore
	graph       store.GraphStore
	keyword     store.KeywordIndex
	parallelMax int
}

// NewOrchestratorParams contains configuration for creating an Orchestrator.
// Extractor and Graph may both be nil to ingest without a knowledge graph;
// Keyword may be nil to skip full-text indexing. Vector is required.
type NewOrchestratorParams struct {
	Chunker              Chunker
	Embedder             Embedder
	Extractor            Extractor
	Vector               store.VectorStore
	Graph                store.GraphStore
	Keyword              store.KeywordIndex
	MaxConcurrentBatches int
}

func NewOrchestrator(params NewOrchestratorParams) (*Orchestrator, error) {
	if params.Chunker == nil || params.Embedder == nil || params.Vector == nil {
		return nil, errors.New("chunker, embedder, and vector store are required")
	}
	if (params.Extractor == nil) != (params.Graph == nil) {
		return nil, errors.New("extractor and graph store must be provided together")
	}
	parallelMax := params.MaxConcurrentBatches
	if parallelMax <= 0 {
		parallelMax = 1
	}
	if params.Graph == nil {
		logger.Warn("No graph store configured, ingesting without entity extraction")
	}
	if params.Keyword == nil {
		logger.Warn("No keyword index configured, ingesting without full-text search")
	}
	return &Orchestrator{
		chunker:     params.Chunker,
		embedder:    params.Embedder,
		extractor:   params.Extractor,
		vector:      params.Vector,
		graph:       params.Graph,
		keyword:     params.Keyword,
		parallelMax: parallelMax,
	}, nil
}

// Ingest runs the pipeline over all batches of one document, at most
// MaxConcurrentBatches in flight, and returns the aggregated stats. The
// returned error is non-nil only for run-stopping conditions; per-batch
// problems are reported in stats.Failures.
func (o *Orchestrator) Ingest(ctx context.Context, documentID string, batches []string) (common.IngestStats, error) {
	stats := common.IngestStats{DocumentID: documentID}
	mergeMu := sync.Mutex{}
	sem := semaphore.NewWeighted(int64(o.parallelMax))

	g, gCtx := errgroup.WithContext(ctx)
	for i, text := range batches {
		batchIndex, batchText := i, text
		if err := sem.Acquire(gCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			batchStats, err := o.processBatch(gCtx, documentID, batchIndex, batchText)
			mergeMu.Lock()
			stats.Merge(batchStats)
			mergeMu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	logger.Info("Ingestion finished",
		"document", documentID,
		"batches", stats.Batches,
		"chunks", stats.Chunks,
		"entities", stats.Entities,
		"relationships", stats.Relationships,
		"failures", len(stats.Failures),
	)
	return stats, ctx.Err()
}

func (o *Orchestrator) processBatch(ctx context.Context, documentID string, batchIndex int, text string) (common.IngestStats, error) {
	stats := common.IngestStats{Batches: 1}

	chunks := o.chunker.Chunk(documentID, batchIndex, text)
	if len(chunks) == 0 {
		return stats, nil
	}
	stats.Chunks = len(chunks)
	for _, chunk := range chunks {
		stats.Tokens += chunk.TokenCount
	}

	var embeds []embed.Result
	var extractions []extract.Result
	stage, stageCtx := errgroup.WithContext(ctx)
	stage.Go(func() error {
		texts := make([]string, len(chunks))
		for i, chunk := range chunks {
			texts[i] = chunk.Text
		}
		embeds = o.embedder.EmbedBatch(stageCtx, texts)
		return nil
	})
	if o.extractor != nil {
		stage.Go(func() error {
			extractions = o.extractor.ExtractBatch(stageCtx, chunks)
			return nil
		})
	}
	_ = stage.Wait()

	okChunks, okEmbeds, embedFailure := partitionEmbeds(chunks, embeds, batchIndex)
	if embedFailure != nil {
		stats.Failures = append(stats.Failures, *embedFailure)
	}

	entities, relationships, extractFailure := collectExtractions(extractions, batchIndex)
	if extractFailure != nil {
		stats.Failures = append(stats.Failures, *extractFailure)
	}
	stats.Entities = len(entities)
	stats.Relationships = len(relationships)

	failureMu := sync.Mutex{}
	recordStoreFailure := func(err error) {
		failureMu.Lock()
		stats.Failures = append(stats.Failures, common.BatchFailure{
			Batch: batchIndex,
			Stage: "store",
			Error: err.Error(),
		})
		failureMu.Unlock()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(okChunks) == 0 {
			return nil
		}
		if err := o.vector.UpsertChunks(gCtx, okChunks, okEmbeds); err != nil {
			if errors.Is(err, common.ErrDimensionMismatch) {
				return err
			}
			recordStoreFailure(fmt.Errorf("vector store: %w", err))
		}
		return nil
	})
	if o.keyword != nil {
		g.Go(func() error {
			if err := o.keyword.Index(gCtx, chunks); err != nil {
				recordStoreFailure(fmt.Errorf("keyword index: %w", err))
			}
			return nil
		})
	}
	if o.graph != nil {
		g.Go(func() error {
			// Relationships reference entities by (name, type), so the
			// entity upsert has to land first.
			if err := o.graph.UpsertEntities(gCtx, entities); err != nil {
				recordStoreFailure(fmt.Errorf("graph store: %w", err))
				return nil
			}
			if err := o.graph.UpsertRelationships(gCtx, relationships); err != nil {
				recordStoreFailure(fmt.Errorf("graph store: %w", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// partitionEmbeds separates successfully embedded chunks from failed ones.
// Failed items are summarized into a single embed-stage BatchFailure.
func partitionEmbeds(chunks []common.Chunk, embeds []embed.Result, batchIndex int) ([]common.Chunk, [][]float32, *common.BatchFailure) {
	okChunks := make([]common.Chunk, 0, len(chunks))
	okEmbeds := make([][]float32, 0, len(chunks))
	var firstErr error
	failed := 0
	for i, res := range embeds {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		okChunks = append(okChunks, chunks[i])
		okEmbeds = append(okEmbeds, res.Embedding)
	}
	if failed == 0 {
		return okChunks, okEmbeds, nil
	}
	return okChunks, okEmbeds, &common.BatchFailure{
		Batch: batchIndex,
		Stage: "embed",
		Error: fmt.Sprintf("%d of %d chunks failed: %v", failed, len(chunks), firstErr),
	}
}

// collectExtractions merges per-chunk extractions into one deduplicated
// entity set and relationship list. Failed chunks are summarized into a
// single extract-stage BatchFailure.
func collectExtractions(extractions []extract.Result, batchIndex int) ([]common.Entity, []common.Relationship, *common.BatchFailure) {
	var entities []common.Entity
	var relationships []common.Relationship
	var firstErr error
	failed := 0
	for _, res := range extractions {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}
		entities = append(entities, res.Extraction.Entities...)
		relationships = append(relationships, res.Extraction.Relationships...)
	}
	entities = extract.DedupeEntities(entities)

	if failed == 0 {
		return entities, relationships, nil
	}
	return entities, relationships, &common.BatchFailure{
		Batch: batchIndex,
		Stage: "extract",
		Error: fmt.Sprintf("%d of %d chunks failed: %v", failed, len(extractions), firstErr),
	}
}

package store

import (
	"context"

	"github.com/lexgraph/lexgraph/pkg/common"
)

// VectorStore persists chunk embeddings and serves similarity search.
// Upserts are idempotent keyed by chunk ID. Search results carry the raw
// similarity score in VectorScore.
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []common.Chunk, embeddings [][]float32) error
	Search(ctx context.Context, embedding []float32, topK int) ([]common.ScoredChunk, error)
	DeleteAll(ctx context.Context) error
}

// GraphStore persists the entity/relationship graph. Upserts are idempotent
// keyed by (name, type); entity-to-chunk links come from each entity's
// ChunkIDs. Neighbors expands breadth-first from the seeds up to depth
// levels; depth 0 returns only the seeds themselves.
type GraphStore interface {
	UpsertEntities(ctx context.Context, entities []common.Entity) error
	UpsertRelationships(ctx context.Context, relationships []common.Relationship) error
	EntitiesForChunks(ctx context.Context, chunkIDs []string) ([]common.Entity, error)
	Neighbors(ctx context.Context, seeds []common.Entity, depth int) ([]common.Entity, []common.Relationship, error)
	DeleteAll(ctx context.Context) error
}

// KeywordIndex persists chunk text for full-text relevance ranking. Search
// results carry the raw relevance score in KeywordScore.
type KeywordIndex interface {
	Index(ctx context.Context, chunks []common.Chunk) error
	Search(ctx context.Context, query string, topK int) ([]common.ScoredChunk, error)
	DeleteAll(ctx context.Context) error
}

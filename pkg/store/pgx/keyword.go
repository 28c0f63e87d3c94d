package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/store"

	"github.com/jackc/pgx/v5"
)

// Index stores chunk text for full-text search. The tsvector is maintained
// by the database as a generated column.
func (s *Store) Index(ctx context.Context, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return store.ChunkRange(len(chunks), insertBatchSize, func(start, end int) error {
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			chunk := chunks[i]
			batch.Queue(`
				INSERT INTO keyword_chunks (id, document_id, chunk_index, start_char, end_char, content, token_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					document_id = EXCLUDED.document_id,
					chunk_index = EXCLUDED.chunk_index,
					start_char = EXCLUDED.start_char,
					end_char = EXCLUDED.end_char,
					content = EXCLUDED.content,
					token_count = EXCLUDED.token_count
			`, chunk.ID, chunk.DocumentID, chunk.Index, chunk.Start, chunk.End,
				chunk.Text, chunk.TokenCount)
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to index chunk %s: %w", chunks[i].ID, err)
			}
		}
		return nil
	})
}

// KeywordSearch returns the topK chunks ranked by full-text relevance,
// highest first. An empty query returns no results.
func (s *Store) KeywordSearch(ctx context.Context, query string, topK int) ([]common.ScoredChunk, error) {
	if topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, start_char, end_char, content, token_count,
		       ts_rank(tsv, websearch_to_tsquery('english', $1))::float8 AS score
		FROM keyword_chunks
		WHERE tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC, id
		LIMIT $2
	`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows, func(sc *common.ScoredChunk, score float64) {
		sc.KeywordScore = score
	})
}

// Keyword returns a view of the store that satisfies store.KeywordIndex.
// The store itself cannot, since vector search already claims the Search
// method name.
func (s *Store) Keyword() store.KeywordIndex {
	return keywordIndex{s}
}

type keywordIndex struct {
	s *Store
}

func (k keywordIndex) Index(ctx context.Context, chunks []common.Chunk) error {
	return k.s.Index(ctx, chunks)
}

func (k keywordIndex) Search(ctx context.Context, query string, topK int) ([]common.ScoredChunk, error) {
	return k.s.KeywordSearch(ctx, query, topK)
}

func (k keywordIndex) DeleteAll(ctx context.Context) error {
	return k.s.DeleteAll(ctx)
}

package pgx

import (
	"context"
	"fmt"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// UpsertChunks stores chunks with their embeddings, keyed by chunk ID.
// The first upsert pins the index to the configured embedding dimension;
// later upserts with a different dimension fail with
// common.ErrDimensionMismatch.
func (s *Store) UpsertChunks(ctx context.Context, chunks []common.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunk/embedding count mismatch: %d != %d", len(chunks), len(embeddings))
	}
	if len(chunks) == 0 {
		return nil
	}
	for i, emb := range embeddings {
		if len(emb) != s.dim {
			return fmt.Errorf(
				"chunk %s has a %d-dimensional embedding, configured dimension is %d: %w",
				chunks[i].ID, len(emb), s.dim, common.ErrDimensionMismatch,
			)
		}
	}

	if err := s.ensureDimension(ctx); err != nil {
		return err
	}

	return store.ChunkRange(len(chunks), insertBatchSize, func(start, end int) error {
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			chunk := chunks[i]
			batch.Queue(`
				INSERT INTO chunks (id, document_id, chunk_index, start_char, end_char, content, token_count, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					document_id = EXCLUDED.document_id,
					chunk_index = EXCLUDED.chunk_index,
					start_char = EXCLUDED.start_char,
					end_char = EXCLUDED.end_char,
					content = EXCLUDED.content,
					token_count = EXCLUDED.token_count,
					embedding = EXCLUDED.embedding
			`, chunk.ID, chunk.DocumentID, chunk.Index, chunk.Start, chunk.End,
				chunk.Text, chunk.TokenCount, pgvector.NewVector(embeddings[i]))
		}
		results := s.pool.SendBatch(ctx, batch)
		defer results.Close()
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to upsert chunk %s: %w", chunks[i].ID, err)
			}
		}
		return nil
	})
}

// Search returns the topK chunks nearest to the query embedding by cosine
// similarity, highest first. The query embedding must match the dimension
// recorded at upload time.
func (s *Store) Search(ctx context.Context, embedding []float32, topK int) ([]common.ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf(
			"query embedding has %d dimensions, configured dimension is %d: %w",
			len(embedding), s.dim, common.ErrDimensionMismatch,
		)
	}
	if err := s.checkDimension(ctx); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, start_char, end_char, content, token_count,
		       1 - (embedding <=> $1) AS score
		FROM chunks
		ORDER BY embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	return scanScoredChunks(rows, func(sc *common.ScoredChunk, score float64) {
		sc.VectorScore = score
	})
}

func scanScoredChunks(rows pgx.Rows, assign func(*common.ScoredChunk, float64)) ([]common.ScoredChunk, error) {
	var out []common.ScoredChunk
	for rows.Next() {
		var sc common.ScoredChunk
		var score float64
		err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.Index,
			&sc.Chunk.Start, &sc.Chunk.End, &sc.Chunk.Text, &sc.Chunk.TokenCount,
			&score,
		)
		if err != nil {
			return nil, err
		}
		assign(&sc, score)
		out = append(out, sc)
	}
	return out, rows.Err()
}

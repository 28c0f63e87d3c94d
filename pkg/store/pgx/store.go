package pgx

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/lexgraph/lexgraph/pkg/common"
	"github.com/lexgraph/lexgraph/pkg/leaselock"
	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// insertBatchSize keeps bulk upserts below the Postgres parameter limit.
const insertBatchSize = 200

// Store implements the vector store, graph store, and keyword index on a
// single PostgreSQL database with pgvector. All upserts are idempotent, so
// concurrent ingestion batches need no client-side locking.
type Store struct {
	pool  *pgxpool.Pool
	model string
	dim   int
}

// NewStoreParams contains configuration for creating a Store.
// EmbeddingModel and EmbeddingDim pin the index to one embedding space;
// mixing dimensions across upload and search fails fast.
type NewStoreParams struct {
	DatabaseURL    string
	EmbeddingModel string
	EmbeddingDim   int
}

// NewStore connects to Postgres, runs pending migrations, and returns a
// ready Store.
func NewStore(ctx context.Context, params NewStoreParams) (*Store, error) {
	if params.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", params.EmbeddingDim)
	}

	if err := runMigrations(params.DatabaseURL); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(params.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &Store{
		pool:  pool,
		model: params.EmbeddingModel,
		dim:   params.EmbeddingDim,
	}, nil
}

func runMigrations(databaseURL string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	url := databaseURL
	if strings.HasPrefix(url, "postgres://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgres://")
	} else if strings.HasPrefix(url, "postgresql://") {
		url = "pgx5://" + strings.TrimPrefix(url, "postgresql://")
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, url)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// LeaseLock returns a lease lock client sharing the store's connection pool.
func (s *Store) LeaseLock() *leaselock.Client {
	return leaselock.New(s.pool)
}

// ensureDimension records the embedding model and dimension on first write
// and rejects writes whose configuration no longer matches the index.
func (s *Store) ensureDimension(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO index_meta (id, model, dimension)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, s.model, s.dim)
	if err != nil {
		return err
	}
	return s.checkDimension(ctx)
}

// checkDimension compares the configured dimension against the one recorded
// at first upload. An empty index passes.
func (s *Store) checkDimension(ctx context.Context) error {
	var model string
	var dim int
	err := s.pool.QueryRow(ctx, `SELECT model, dimension FROM index_meta WHERE id = 1`).Scan(&model, &dim)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if dim != s.dim {
		return fmt.Errorf(
			"index was built with model %s (%d dimensions), configured model %s has %d: %w",
			model, dim, s.model, s.dim, common.ErrDimensionMismatch,
		)
	}
	return nil
}

// DeleteAll clears every store: chunks, keyword index, graph, and the index
// metadata, so a following upload may use a different embedding model.
func (s *Store) DeleteAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE chunks, keyword_chunks, entity_chunks, relationships, entities RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to clear stores: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("failed to reset index metadata: %w", err)
	}
	logger.Info("Cleared all stored documents and graph data")
	return nil
}

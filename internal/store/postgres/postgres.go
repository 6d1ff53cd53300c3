// Package postgres is a PostgreSQL buffer cache that several texgraph
// processes can share. It stores entries the same way as the SQLite store:
// one entries row per computation and one buffers row per output slot.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/texgraph/internal/store"
)

// PGStore implements store.Backend using PostgreSQL via pgx.
type PGStore struct {
	db *pgxpool.Pool
}

var _ store.Backend = (*PGStore)(nil)

// New creates a PGStore backed by the given pool. The caller owns the pool
// and must create the schema.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Open connects to url and creates the schema if needed. Close releases the
// pool.
func Open(ctx context.Context, url string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("cache: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	s := New(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return s, nil
}

// Close closes the pool.
func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

// Package database is the room repository: persistent rooms, seats, and
// idempotency records, backed by Postgres via pgx. It is the sole source
// of truth for room lifecycle state — the cache adapter only ever holds a
// denormalized, best-effort copy.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository owns a pgx connection pool and implements the room lifecycle
// operations the room service composes on top of.
type Repository struct {
	pool *pgxpool.Pool
}

// New parses databaseURL, opens a pool, and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

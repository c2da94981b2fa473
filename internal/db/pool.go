// Package db owns the PostgreSQL connection pool and the schema for the
// contexto assembly pipeline.
//
// All stores share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS. Schema creation is explicit (the migrate
// command) rather than implicit on connect, so read paths never race a DDL
// statement.
//
// Usage:
//
//	pool, err := db.NewPool(ctx, dsn, 10)
//	if err != nil { … }
//	defer pool.Close()
//
//	if err := db.Migrate(ctx, pool, 1536); err != nil { … }
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ofim/contexto/internal/config"
)

// NewPool establishes a connection pool to the PostgreSQL database at dsn and
// registers pgvector types on every connection, so vector columns can be
// scanned into and inserted from pgvector.Vector values.
//
// maxConns caps the pool size. Idle connections are reclaimed after
// [config.PoolMaxConnIdleTime]; dialing is bounded by
// [config.PoolConnectTimeout], which is also the effective backstop for any
// single layer fetch against a dead database.
func NewPool(ctx context.Context, dsn string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("db: parse dsn: %w", err)
	}

	cfg.MaxConns = int32(maxConns)
	cfg.MaxConnIdleTime = config.PoolMaxConnIdleTime
	cfg.ConnConfig.ConnectTimeout = config.PoolConnectTimeout
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return pool, nil
}

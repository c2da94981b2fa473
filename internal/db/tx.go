package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTransaction runs fn inside a single database transaction. The
// transaction is committed when fn returns nil and rolled back when it
// returns an error or panics (the panic is re-raised after rollback).
//
// Stores constructed over the pgx.Tx passed to fn share the transaction, so
// a session's relationship update, memory inserts, and state changes land
// atomically or not at all.
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	if err := pgx.BeginFunc(ctx, pool, fn); err != nil {
		return fmt.Errorf("db: transaction: %w", err)
	}
	return nil
}

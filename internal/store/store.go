// Package store is the durable record of users, contracts, scripted days,
// catalogues, and the mini-game runtime snapshot. It wraps a PostgreSQL
// connection pool and exposes per-entity query helpers plus a transaction
// helper that the trading core and settlement pipeline use to serialize
// money-mutating operations with row-level locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a lookup by id/key matches no row.
var ErrNotFound = errors.New("store: not found")

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting query
// helpers run unmodified inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps the pool for easier swapping/testing, matching the shape of
// the teacher's pkg/db.Database.
type Store struct {
	Pool *pgxpool.Pool
}

// New opens a connection pool against the given DSN and pings it.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is empty")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s == nil || s.Pool == nil {
		return
	}
	s.Pool.Close()
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error or panic. Every per-user money-mutating operation
// in the trading core and settlement pipeline goes through this; the
// settlement pipeline's bulk interest accrual and daily-borrow reset are
// single statements on the pool instead.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(ctx, tx)
	return err
}

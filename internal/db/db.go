// Package db provides PostgreSQL-backed repositories for shop entitlement
// state, discounts and storefront tokens. All repositories accept a DBTX
// interface that is satisfied by both *pgxpool.Pool (for normal queries) and
// pgx.Tx (for transactional execution).
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx.
// Repositories accept this so the same code works inside or outside a
// transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxBeginner starts a transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transactor runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx DBTX) error) error
}

// PoolTransactor is the production Transactor backed by a pgx pool.
type PoolTransactor struct {
	beginner TxBeginner
}

// NewPoolTransactor wraps a pool (or anything that can Begin).
func NewPoolTransactor(beginner TxBeginner) *PoolTransactor {
	return &PoolTransactor{beginner: beginner}
}

// WithTx implements Transactor.
func (t *PoolTransactor) WithTx(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := t.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// NewPool opens a pgx pool with the given connection limit and verifies
// connectivity.
func NewPool(ctx context.Context, url string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

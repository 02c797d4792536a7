package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/farmlink/farmlink/internal/shared"
)

// ErrConflict reports a lost optimistic version check. Transactions failing
// with it are retried like serialization failures.
var ErrConflict = errors.New("platform/db: version conflict")

// ErrRetriesExhausted wraps the last retryable error once the budget is spent.
// The returned error also matches shared.ErrConcurrencyConflict.
var ErrRetriesExhausted = errors.New("platform/db: transaction retries exhausted")

// DefaultMaxAttempts bounds WithTx retries when no policy is configured.
const DefaultMaxAttempts = 3

// IsRetryable reports whether err is a serialization failure, a deadlock or a
// lost version check.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithRetryTx runs WithTx up to maxAttempts times while the failure is
// retryable. Each attempt starts a fresh transaction so reads are repeated.
func WithRetryTx(ctx context.Context, pool *pgxpool.Pool, maxAttempts int, fn func(pgx.Tx) error) error {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = WithTx(ctx, pool, fn); err == nil || !IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %w: %w", ErrRetriesExhausted, shared.ErrConcurrencyConflict, err)
}

package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IdempotencyStore persists processed keys together with the result returned
// the first time, so a retried request can be answered without re-applying it.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// Claim reserves key for module using q, normally the caller's transaction so
// the reservation commits or rolls back with the guarded write. When the key
// was already processed the stored result is returned with ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, q DBTX, module, key string) ([]byte, error) {
	if s == nil {
		return nil, errors.New("idempotency store not initialised")
	}
	if key == "" {
		return nil, errors.New("idempotency key required")
	}
	if module == "" {
		return nil, errors.New("idempotency module required")
	}
	var inserted string
	err := q.QueryRow(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (module, key) DO NOTHING RETURNING key`, key, module, time.Now()).Scan(&inserted)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var result []byte
	if err := q.QueryRow(ctx, `SELECT COALESCE(result, 'null'::jsonb) FROM idempotency_keys WHERE module=$1 AND key=$2`, module, key).Scan(&result); err != nil {
		return nil, err
	}
	return result, ErrIdempotencyConflict
}

// Complete stores the result for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, q DBTX, module, key string, result []byte) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	_, err := q.Exec(ctx, `UPDATE idempotency_keys SET result=$3 WHERE module=$1 AND key=$2`, module, key, result)
	return err
}

// Cleanup removes entries older than retention and reports how many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

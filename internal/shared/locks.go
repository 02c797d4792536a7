package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FarmerLockKey builds redis keys for per-farmer critical sections.
func FarmerLockKey(farmerID int64) string {
	return fmt.Sprintf("farmlink:farmer:%d:lock", farmerID)
}

// ErrLockNotAcquired is returned when the lock stays held past the wait budget.
var ErrLockNotAcquired = fmt.Errorf("farmer lock not acquired: %w", ErrConcurrencyConflict)

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// FarmerLocker serialises writes touching one farmer's balances across
// processes. A nil locker or nil client makes Acquire a no-op; row locks in
// the database remain the source of truth.
type FarmerLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewFarmerLocker constructs a locker. ttl bounds how long a crashed holder
// can block others, wait bounds how long Acquire polls.
func NewFarmerLocker(client *redis.Client, ttl, wait time.Duration) *FarmerLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &FarmerLocker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

// Acquire takes the lock for farmerID and returns its release func.
func (l *FarmerLocker) Acquire(ctx context.Context, farmerID int64) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := FarmerLockKey(farmerID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire farmer lock: %w", err)
		}
		if ok {
			return func() {
				// Released with a fresh context so a cancelled request still frees the key.
				rctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = l.client.Eval(rctx, releaseScript, []string{key}, token).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestFarmerLockerExcludesConcurrentHolders(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewFarmerLocker(client, time.Second, 0)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)
	require.True(t, mr.Exists(FarmerLockKey(7)))

	_, err = locker.Acquire(ctx, 7)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	other, err := locker.Acquire(ctx, 8)
	require.NoError(t, err)
	other()

	release()
	require.False(t, mr.Exists(FarmerLockKey(7)))

	again, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)
	again()
}

func TestFarmerLockerNilClientIsNoop(t *testing.T) {
	var locker *FarmerLocker
	release, err := locker.Acquire(context.Background(), 1)
	require.NoError(t, err)
	release()
}

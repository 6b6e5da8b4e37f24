package local_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/lock"
	"github.com/DataONEorg/hashstore/pkg/lock/local"
)

func TestLocker_BasicLockUnlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := local.NewLocker(lock.KindPid)

	err := locker.Lock(ctx, "test-key", 5*time.Second)
	require.NoError(t, err)

	err = locker.Unlock(ctx, "test-key")
	require.NoError(t, err)
}

func TestLocker_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := local.NewLocker(lock.KindCid)

	var (
		counter int64
		wg      sync.WaitGroup
	)

	for range 10 {
		wg.Go(func() {
			for range 100 {
				err := locker.Lock(ctx, "counter", 5*time.Second)
				require.NoError(t, err)

				val := atomic.LoadInt64(&counter)

				time.Sleep(time.Microsecond)
				atomic.StoreInt64(&counter, val+1)

				err = locker.Unlock(ctx, "counter")
				assert.NoError(t, err)
			}
		})
	}

	wg.Wait()

	assert.Equal(t, int64(1000), atomic.LoadInt64(&counter))
}

func TestLocker_TryLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := local.NewLocker(lock.KindPid)

	acquired, err := locker.TryLock(ctx, "test-key", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired2, err := locker.TryLock(ctx, "test-key", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired2)

	err = locker.Unlock(ctx, "test-key")
	require.NoError(t, err)

	acquired3, err := locker.TryLock(ctx, "test-key", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired3)

	err = locker.Unlock(ctx, "test-key")
	require.NoError(t, err)
}

func TestLocker_PerKeyLocksIgnoreTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := local.NewLocker(lock.KindPid)

	err := locker.Lock(ctx, "key1", 1*time.Second)
	require.NoError(t, err)

	acquired, err := locker.TryLock(ctx, "key2", 1*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired, "local lock should use per-key mutexes")

	acquired2, err := locker.TryLock(ctx, "key1", 1*time.Second)
	require.NoError(t, err)
	assert.False(t, acquired2, "same key should be locked")

	err = locker.Unlock(ctx, "key1")
	require.NoError(t, err)

	err = locker.Unlock(ctx, "key2")
	require.NoError(t, err)

	err = locker.Lock(ctx, "key3", 999*time.Hour)
	require.NoError(t, err)

	err = locker.Unlock(ctx, "key3")
	require.NoError(t, err)
}

func TestLocker_DistinctKeysDoNotDeadlock(t *testing.T) {
	t.Parallel()

	key1 := "pid:94f9b6c88f"
	key2 := "cid:0rwy6f0xg4"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	locker := local.NewLocker(lock.KindPid)

	err := locker.Lock(ctx, key1, time.Second)
	require.NoError(t, err)

	defer func() {
		err := locker.Unlock(ctx, key1)
		assert.NoError(t, err)
	}()

	err = locker.Lock(ctx, key2, time.Second)
	require.NoError(t, err)

	defer func() {
		err := locker.Unlock(ctx, key2)
		assert.NoError(t, err)
	}()
}

// TestLocker_ConcurrentUnlock exercises concurrent Unlock calls racing on
// the same key. Without proper synchronization both could pass the !ok
// check and attempt to unlock, causing a panic.
func TestLocker_ConcurrentUnlock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	locker := local.NewLocker(lock.KindPid)

	err := locker.Lock(ctx, "test-key", 5*time.Second)
	require.NoError(t, err)

	var wg sync.WaitGroup

	numGoroutines := 10

	start := make(chan struct{})

	for range numGoroutines {
		wg.Go(func() {
			<-start

			_ = locker.Unlock(ctx, "test-key")
		})
	}

	close(start)
	wg.Wait()
}

package lock_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/lock"
)

func TestTable_NestedPidThenCidLock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := lock.NewTable()

	var ran bool

	err := table.WithPidLock(ctx, "pid-1", func(ctx context.Context) error {
		return table.WithCidLock(ctx, "cid-1", func(ctx context.Context) error {
			ran = true

			return nil
		})
	})

	require.NoError(t, err)
	assert.True(t, ran)
}

func TestTable_SamePidSerializes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := lock.NewTable()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for range 20 {
		wg.Go(func() {
			_ = table.WithPidLock(ctx, "same-pid", func(ctx context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()

				return nil
			})
		})
	}

	wg.Wait()

	assert.Equal(t, 1, maxSeen, "pid lock must serialize concurrent callers")
}

func TestTable_SamePidDifferentNamespacesRunConcurrently(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := lock.NewTable()

	start := make(chan struct{})

	var wg sync.WaitGroup

	for _, ns := range []string{"ns-a", "ns-b"} {
		ns := ns

		wg.Go(func() {
			<-start

			_ = table.WithPidNamespaceLock(ctx, "same-pid", ns, func(ctx context.Context) error {
				return nil
			})
		})
	}

	close(start)
	wg.Wait()
}

func TestTable_TryPidLockReportsContention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	table := lock.NewTable()

	acquired, err := table.TryPidLock(ctx, "pid-1")
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired2, err := table.TryPidLock(ctx, "pid-1")
	require.NoError(t, err)
	assert.False(t, acquired2)

	require.NoError(t, table.UnlockPid(ctx, "pid-1"))
}

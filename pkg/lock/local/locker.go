package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DataONEorg/hashstore/pkg/lock"
)

// ErrUnlockUnknownKey is returned when attempting to unlock a key that is not locked.
var ErrUnlockUnknownKey = fmt.Errorf("local.Locker: unlock of unknown key")

// Locker implements lock.Locker using per-key mutexes.
// Uses a map of mutexes to provide true per-key locking semantics
// without the risk of shard collisions. Ref-counting is used to
// clean up mutexes when they are no longer in use.
type Locker struct {
	kind string

	mu      sync.Mutex
	lockers map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refCount  int
	startTime time.Time
}

// NewLocker creates a new local locker for the given lock kind (one of the
// lock.Kind* constants), used only to label metrics.
func NewLocker(kind string) lock.Locker {
	return &Locker{
		kind:    kind,
		lockers: make(map[string]*keyLock),
	}
}

// getLock returns the lock for the given key, creating it if it doesn't exist.
// It also increments the reference count.
func (l *Locker) getLock(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.lockers[key]
	if !ok {
		kl = &keyLock{}
		l.lockers[key] = kl
	}

	kl.refCount++

	return kl
}

// releaseLock decrements the reference count and removes the lock from the map if it reaches zero.
func (l *Locker) releaseLock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.lockers[key]

	kl.refCount--
	if kl.refCount == 0 {
		delete(l.lockers, key)
	}
}

// Lock acquires an exclusive lock. The ttl parameter is ignored.
func (l *Locker) Lock(ctx context.Context, key string, _ time.Duration) error {
	kl := l.getLock(key)

	kl.Lock()

	kl.startTime = time.Now()

	lock.RecordAcquisition(ctx, l.kind, lock.ResultSuccess)

	return nil
}

// Unlock releases an exclusive lock for the given key.
func (l *Locker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()

	kl, ok := l.lockers[key]
	if !ok {
		l.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnlockUnknownKey, key)
	}

	if !kl.startTime.IsZero() {
		duration := time.Since(kl.startTime).Seconds()
		lock.RecordHoldDuration(ctx, l.kind, duration)

		kl.startTime = time.Time{}
	}

	// Drop the reference while still holding l.mu, so that a racing Unlock
	// of the same key finds it gone instead of unlocking the mutex twice.
	kl.refCount--
	if kl.refCount == 0 {
		delete(l.lockers, key)
	}

	l.mu.Unlock()

	kl.Unlock()

	return nil
}

// TryLock attempts to acquire an exclusive lock without blocking.
func (l *Locker) TryLock(ctx context.Context, key string, _ time.Duration) (bool, error) {
	kl := l.getLock(key)

	acquired := kl.TryLock()

	if acquired {
		kl.startTime = time.Now()

		lock.RecordAcquisition(ctx, l.kind, lock.ResultSuccess)
	} else {
		lock.RecordAcquisition(ctx, l.kind, lock.ResultContention)
		l.releaseLock(key)
	}

	return acquired, nil
}

// Package lock provides the keyed advisory locking HashStore uses to
// serialize operations by pid, cid, and (pid,namespace) (§4.E).
//
// HashStore is a single-process, single-instance store (§5 "Shared
// resources": two processes sharing the same store root is out of scope),
// so unlike the teacher package this one exposes only the local,
// in-process implementation — there is no distributed lock backend to pick
// between.
package lock

import (
	"context"
	"time"
)

// Locker provides exclusive locking semantics keyed by an arbitrary string
// identifier (a pid, a cid, or a "pid\x00namespace" composite key).
type Locker interface {
	// Lock acquires an exclusive lock for key, blocking until it is
	// available. The ttl parameter exists for interface parity with a
	// future distributed lock implementation; the local implementation
	// ignores it (§5: "no wall-clock timeout on lock acquisition").
	Lock(ctx context.Context, key string, ttl time.Duration) error

	// Unlock releases the exclusive lock held for key.
	Unlock(ctx context.Context, key string) error

	// TryLock attempts to acquire the lock without blocking. It returns
	// (false, nil) — not an error — if the key is already locked.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

package lock

import (
	"context"
	"time"

	"github.com/DataONEorg/hashstore/pkg/lock/local"
)

// DefaultTTL is passed to every lock acquisition. The local implementation
// ignores it; it exists so a future distributed Locker can be dropped in
// without changing call sites (§5: no wall-clock timeout is actually
// enforced for the local store).
const DefaultTTL = 5 * time.Minute

// Table is the process-wide structure maintaining the three keyed lock sets
// HashStore serializes on: pid, cid, and (pid,namespace) (§4.E). Callers
// must acquire in the fixed order pid before cid, pid before (pid,namespace)
// (§5) to avoid deadlock. Table does not enforce this order: WithCidLock and
// WithPidNamespaceLock are ordinary methods that can be called with or
// without a held pid lock, and the order holds only because callers nest
// them inside WithPidLock's callback where both are needed.
type Table struct {
	pid       Locker
	cid       Locker
	namespace Locker
}

// NewTable constructs a Table backed by local, in-process lockers.
func NewTable() *Table {
	return &Table{
		pid:       local.NewLocker(KindPid),
		cid:       local.NewLocker(KindCid),
		namespace: local.NewLocker(KindPidNamespace),
	}
}

// WithPidLock acquires the pid lock, runs fn, and releases the lock
// regardless of whether fn returns an error — including when fn's context
// is canceled mid-call (§5 "Cancellation and timeouts").
func (t *Table) WithPidLock(ctx context.Context, pid string, fn func(ctx context.Context) error) error {
	if err := t.pid.Lock(ctx, pid, DefaultTTL); err != nil {
		return err
	}

	defer func() { _ = t.pid.Unlock(ctx, pid) }()

	return fn(ctx)
}

// WithCidLock acquires the cid lock, runs fn, and releases it before
// returning. Callers must already hold the pid lock for the corresponding
// pid when cid tagging is involved (§4.E, §5 ordering: pid before cid).
func (t *Table) WithCidLock(ctx context.Context, cid string, fn func(ctx context.Context) error) error {
	if err := t.cid.Lock(ctx, cid, DefaultTTL); err != nil {
		return err
	}

	defer func() { _ = t.cid.Unlock(ctx, cid) }()

	return fn(ctx)
}

// WithPidNamespaceLock acquires the (pid,namespace) lock used to serialize
// store_metadata calls (§5: "different namespaces for the same pid may
// proceed in parallel").
func (t *Table) WithPidNamespaceLock(
	ctx context.Context,
	pid, namespace string,
	fn func(ctx context.Context) error,
) error {
	key := pidNamespaceKey(pid, namespace)

	if err := t.namespace.Lock(ctx, key, DefaultTTL); err != nil {
		return err
	}

	defer func() { _ = t.namespace.Unlock(ctx, key) }()

	return fn(ctx)
}

// TryPidLock attempts to acquire the pid lock without blocking, returning
// false rather than an error on contention (§7 *Contended*, one of the two
// acceptable behaviors the spec allows for concurrent acquisition).
func (t *Table) TryPidLock(ctx context.Context, pid string) (bool, error) {
	return t.pid.TryLock(ctx, pid, DefaultTTL)
}

// UnlockPid releases a pid lock acquired via TryPidLock.
func (t *Table) UnlockPid(ctx context.Context, pid string) error {
	return t.pid.Unlock(ctx, pid)
}

func pidNamespaceKey(pid, namespace string) string {
	return pid + "\x00" + namespace
}

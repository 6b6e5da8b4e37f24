// Package local provides the single-instance lock implementation HashStore
// uses for its pid, cid, and (pid,namespace) keyed locks.
//
// Locks use a standard sync.Mutex per key, ref-counted so the backing map
// stays bounded in size (§9 "process-wide lock tables": entries are removed
// when the last holder releases).
package local

// Package hserrors defines the semantic error kinds HashStore's public
// operations fail with (§7). These are sentinel values, not a type
// hierarchy — callers use errors.Is against them; wrapping with
// fmt.Errorf("%w: ...") is expected to preserve identity.
package hserrors

import "errors"

var (
	// ErrInvalidArgument covers a null/empty/malformed pid, a bad
	// algorithm name, or a nonsensical size.
	ErrInvalidArgument = errors.New("hashstore: invalid argument")

	// ErrUnsupportedAlgorithm is returned when a named algorithm is not
	// in the fixed supported set (§4.A, §4.H). Re-exported here so
	// pipeline-level callers can errors.Is against it without importing
	// the checksum package directly; checksum.ErrUnsupportedAlgorithm
	// wraps this value.
	ErrUnsupportedAlgorithm = errors.New("hashstore: unsupported algorithm")

	// ErrNotFound covers a pid or object that does not exist.
	ErrNotFound = errors.New("hashstore: not found")

	// ErrAlreadyExists is the internal dedup/conflict signal from the
	// atomic-move step (§4.C); the pipeline consumes it as a dedup hit or
	// falls back to updating the existing cid-refs file. The more specific
	// errors below are separate sentinels and do not wrap it.
	ErrAlreadyExists = errors.New("hashstore: already exists")

	// ErrChecksumMismatch is returned when a caller-supplied checksum
	// does not match the computed digest.
	ErrChecksumMismatch = errors.New("hashstore: checksum mismatch")

	// ErrSizeMismatch is returned when a caller-supplied expected size
	// does not match the observed stream size.
	ErrSizeMismatch = errors.New("hashstore: size mismatch")

	// ErrOrphanPidRefs is returned when a pid-refs file names a cid that
	// has no cid-refs file.
	ErrOrphanPidRefs = errors.New("hashstore: orphan pid-refs")

	// ErrOrphanRefs is returned when a cid-refs file exists but the
	// backing object file is missing.
	ErrOrphanRefs = errors.New("hashstore: orphan refs")

	// ErrPidNotInCidRefs is returned when a cid-refs file exists but
	// does not list the pid being checked.
	ErrPidNotInCidRefs = errors.New("hashstore: pid not in cid-refs")

	// ErrCidMismatch is returned when a pid-refs file's content does not
	// equal the cid being verified against.
	ErrCidMismatch = errors.New("hashstore: cid mismatch")

	// ErrIOFailure wraps an underlying filesystem error encountered
	// mid-operation.
	ErrIOFailure = errors.New("hashstore: I/O failure")

	// ErrContended names lock contention (§4.E, optional). No lock path
	// in this module returns it: the lock table's blocking helpers wait,
	// and TryPidLock reports contention as (false, nil).
	ErrContended = errors.New("hashstore: lock contended")

	// ErrPidAlreadyTagged is returned by TagObject and StoreObject when a
	// pid-refs file already points at a different cid than the one being
	// tagged (§4.F).
	ErrPidAlreadyTagged = errors.New("hashstore: pid already tagged with a different cid")

	// ErrPidRefsFileExists is returned by write_pid_refs when the
	// destination exists and refers to a different cid (§4.D).
	ErrPidRefsFileExists = errors.New("hashstore: pid-refs file already exists for a different cid")

	// ErrPidNotFound is the pipeline-level *PidNotFound* surfaced by
	// delete_object / retrieve_object / find_object when no pid-refs
	// file exists for the pid.
	ErrPidNotFound = errors.New("hashstore: pid not found")

	// ErrRefsAlreadyExist is the pipeline boundary spelling of
	// *HashStoreRefsAlreadyExist* (§7). No operation in this module
	// returns it: a cid-refs create that finds the file already present
	// falls back to adding the pid to the existing file.
	ErrRefsAlreadyExist = errors.New("hashstore: refs already exist")

	// ErrEmptyStream is returned by DigestStream when expected_size > 0
	// but EOF arrives before any bytes are read.
	ErrEmptyStream = errors.New("hashstore: empty stream")
)

package hashstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/refstore"
)

// VerifyOrDelete implements verify_or_delete (§4.F): it checks the
// expected size and checksum against meta's recorded size and digest map
// (the object file is not re-read) and, if the caller asks for a size or
// checksum check that fails, optionally deletes the object file. It never touches refs — untagging a
// not-yet-tagged object is the caller's responsibility.
func (s *Store) VerifyOrDelete(
	ctx context.Context,
	meta *ObjectMetadata,
	expectedChecksum string,
	checksumAlgo checksum.Algorithm,
	expectedSize int64,
	deleteOnFailure bool,
) error {
	_, span := tracer.Start(
		ctx,
		"hashstore.VerifyOrDelete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cid", meta.Cid)),
	)
	defer span.End()

	fail := func(err error) error {
		if deleteOnFailure {
			if objPath, pathErr := s.objs.ObjectPath(meta.Cid); pathErr == nil {
				s.objs.Delete(objPath) //nolint:errcheck
			}
		}

		return err
	}

	if expectedSize != -1 && meta.Size != expectedSize {
		return fail(fmt.Errorf("%w: expected %d bytes, stored %d", hserrors.ErrSizeMismatch, expectedSize, meta.Size))
	}

	if expectedChecksum != "" {
		got, ok := meta.Digests[checksumAlgo]
		if !ok {
			return fail(fmt.Errorf("%w: %q not among computed digests", hserrors.ErrUnsupportedAlgorithm, checksumAlgo))
		}

		if !checksum.HexEqual(got, expectedChecksum) {
			return fail(fmt.Errorf("%w: %s digest %s != expected %s", hserrors.ErrChecksumMismatch, checksumAlgo, got, expectedChecksum))
		}
	}

	return nil
}

// DeleteObject implements delete_object (§4.F). It acquires the pid
// lock, resolves the pid's cid, acquires the cid lock, removes pid from
// the cid-refs file, and — if the cid-refs file becomes empty — deletes
// the object and cid-refs file. The pid-refs file and every metadata
// document recorded for pid are always removed. A missing pid-refs file
// fails with hserrors.ErrPidNotFound; for an orphan pid-refs file (cid-refs
// missing or not listing pid) the object and cid-refs file are left
// untouched and only the pid-refs file and pid's metadata are removed.
func (s *Store) DeleteObject(ctx context.Context, pid string) error {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.DeleteObject",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pid", pid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return err
	}

	return s.locks.WithPidLock(ctx, pid, func(ctx context.Context) error {
		pidRefsPath, err := s.refs.PidRefsPath(pid)
		if err != nil {
			return err
		}

		cid, err := s.refs.ReadPidRefs(ctx, pidRefsPath)
		if err != nil {
			if errors.Is(err, hserrors.ErrNotFound) {
				return hserrors.ErrPidNotFound
			}

			return err
		}

		deleteErr := s.locks.WithCidLock(ctx, cid, func(ctx context.Context) error {
			return s.untagAndMaybeDeleteObject(ctx, pid, cid)
		})
		if deleteErr != nil {
			return deleteErr
		}

		if err := s.refs.DeletePidRefs(ctx, pidRefsPath); err != nil {
			return err
		}

		return s.objs.DeleteAllMetadataForPid(pid)
	})
}

func (s *Store) untagAndMaybeDeleteObject(ctx context.Context, pid, cid string) error {
	cidRefsPath, err := s.refs.CidRefsPath(cid)
	if err != nil {
		return err
	}

	pids, err := s.refs.ReadCidRefs(ctx, cidRefsPath)
	if err != nil && !errors.Is(err, hserrors.ErrNotFound) {
		return err
	}

	if errors.Is(err, hserrors.ErrNotFound) || !containsPid(pids, pid) {
		// orphan pid-refs: cid-refs missing or does not list pid. The
		// caller only removes the pid-refs file (and metadata) above.
		return nil
	}

	if err := s.refs.UpdateCidRefs(ctx, cidRefsPath, pid, refstore.REMOVE); err != nil {
		return err
	}

	remaining, err := s.refs.ReadCidRefs(ctx, cidRefsPath)
	if err != nil {
		return err
	}

	if len(remaining) > 0 {
		return nil
	}

	objPath, err := s.objs.ObjectPath(cid)
	if err != nil {
		return err
	}

	if err := s.objs.Delete(objPath); err != nil {
		return err
	}

	return s.refs.DeleteCidRefs(ctx, cidRefsPath)
}

func containsPid(pids []string, pid string) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}

	return false
}

// DeleteObjectByCid implements delete_object_by_cid (§4.F): it acquires
// the cid lock and deletes the object file only if no cid-refs file
// exists for cid (no pid references it). If any pid still references
// it, the call is a no-op — per the latest source's contract (see
// DESIGN.md open-question resolution), delete_object_by_cid never
// deletes an object while any cid-refs file, even an empty one, is
// present; callers that want to reclaim an empty cid-refs file's object
// should remove the cid-refs file first via the untagging path.
func (s *Store) DeleteObjectByCid(ctx context.Context, cid string) error {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.DeleteObjectByCid",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cid", cid)),
	)
	defer span.End()

	if cid == "" {
		return fmt.Errorf("%w: cid must not be empty", hserrors.ErrInvalidArgument)
	}

	return s.locks.WithCidLock(ctx, cid, func(ctx context.Context) error {
		cidRefsPath, err := s.refs.CidRefsPath(cid)
		if err != nil {
			return err
		}

		if _, err := s.refs.ReadCidRefs(ctx, cidRefsPath); err == nil {
			return nil
		} else if !errors.Is(err, hserrors.ErrNotFound) {
			return err
		}

		objPath, err := s.objs.ObjectPath(cid)
		if err != nil {
			return err
		}

		return s.objs.Delete(objPath)
	})
}

// StoreMetadata implements store_metadata (§4.F): it acquires the
// (pid, namespace) lock and streams src to the metadata document at
// address(sha256(pid))/hex(sha256(namespace)), overwriting any existing
// document there. An empty namespace uses the store's configured
// default metadata namespace.
func (s *Store) StoreMetadata(ctx context.Context, pid, namespace string, src io.Reader) error {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.StoreMetadata",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pid", pid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return err
	}

	if namespace == "" {
		namespace = s.defNS
	}

	return s.locks.WithPidNamespaceLock(ctx, pid, namespace, func(ctx context.Context) error {
		target, err := s.objs.MetadataPath(pid, namespace)
		if err != nil {
			return err
		}

		_, _, err = s.objs.WriteMetadata(ctx, target, src)

		return err
	})
}

// RetrieveObject implements retrieve_object (§4.F): it reads the pid's
// pid-refs file and opens the corresponding object file. The caller must
// close the returned io.ReadCloser.
func (s *Store) RetrieveObject(ctx context.Context, pid string) (io.ReadCloser, int64, error) {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.RetrieveObject",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pid", pid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return nil, 0, err
	}

	pidRefsPath, err := s.refs.PidRefsPath(pid)
	if err != nil {
		return nil, 0, err
	}

	cid, err := s.refs.ReadPidRefs(ctx, pidRefsPath)
	if err != nil {
		if errors.Is(err, hserrors.ErrNotFound) {
			return nil, 0, hserrors.ErrPidNotFound
		}

		return nil, 0, err
	}

	objPath, err := s.objs.ObjectPath(cid)
	if err != nil {
		return nil, 0, err
	}

	size, rc, err := s.objs.Open(objPath)
	if err != nil {
		if errors.Is(err, hserrors.ErrNotFound) {
			return nil, 0, hserrors.ErrOrphanRefs
		}

		return nil, 0, err
	}

	return rc, size, nil
}

// RetrieveMetadata implements retrieve_metadata (§4.F). The caller must
// close the returned io.ReadCloser.
func (s *Store) RetrieveMetadata(ctx context.Context, pid, namespace string) (io.ReadCloser, int64, error) {
	_, span := tracer.Start(
		ctx,
		"hashstore.RetrieveMetadata",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pid", pid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return nil, 0, err
	}

	if namespace == "" {
		namespace = s.defNS
	}

	target, err := s.objs.MetadataPath(pid, namespace)
	if err != nil {
		return nil, 0, err
	}

	size, rc, err := s.objs.OpenMetadata(target)

	return rc, size, err
}

// FindObject implements find_object (§4.F): it reads the pid-refs file
// and verifies the reference graph is consistent before returning cid.
func (s *Store) FindObject(ctx context.Context, pid string) (string, error) {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.FindObject",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pid", pid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return "", err
	}

	pidRefsPath, err := s.refs.PidRefsPath(pid)
	if err != nil {
		return "", err
	}

	cid, err := s.refs.ReadPidRefs(ctx, pidRefsPath)
	if err != nil {
		if errors.Is(err, hserrors.ErrNotFound) {
			return "", hserrors.ErrPidNotFound
		}

		return "", err
	}

	cidRefsPath, err := s.refs.CidRefsPath(cid)
	if err != nil {
		return "", err
	}

	pids, err := s.refs.ReadCidRefs(ctx, cidRefsPath)
	if err != nil {
		if errors.Is(err, hserrors.ErrNotFound) {
			return "", hserrors.ErrOrphanPidRefs
		}

		return "", err
	}

	objPath, err := s.objs.ObjectPath(cid)
	if err != nil {
		return "", err
	}

	if !s.objs.Exists(objPath) {
		return "", hserrors.ErrOrphanRefs
	}

	if !containsPid(pids, pid) {
		return "", hserrors.ErrPidNotInCidRefs
	}

	return cid, nil
}

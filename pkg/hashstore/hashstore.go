// Package hashstore implements the ObjectPipeline (§4.F): the public,
// testable surface that orchestrates layout, checksum, the lock table,
// refstore and objectstore into the put/tag/retrieve/delete operations a
// content-addressed object store exposes to callers. It follows the
// teacher's pkg/storage/local idiom of a single Store type wrapping a
// root directory, instrumented with the same otel tracer conventions
// used across the rest of the module.
package hashstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/config"
	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/layout"
	"github.com/DataONEorg/hashstore/pkg/lock"
	"github.com/DataONEorg/hashstore/pkg/objectstore"
	"github.com/DataONEorg/hashstore/pkg/refstore"
)

const otelPackageName = "github.com/DataONEorg/hashstore/pkg/hashstore"

//nolint:gochecknoglobals
var tracer trace.Tracer

//nolint:gochecknoinits
func init() {
	tracer = otel.Tracer(otelPackageName)
}

// Store is the top-level HashStore object pipeline, rooted at a single
// store directory on disk.
type Store struct {
	root  string
	doc   *config.Document
	depth int
	width int
	objs  *objectstore.Store
	refs  *refstore.Store
	locks *lock.Table
	defNS string
	algo  checksum.Algorithm
}

// Open initializes (or reopens) a HashStore rooted at root. On first open
// it writes the config document and constructs the required
// subdirectories (§4.G); on subsequent opens it validates that req
// matches the persisted document and fails with config.ErrMismatch
// otherwise (I5).
func Open(root string, req config.Request) (*Store, error) {
	doc, err := config.Init(root, req)
	if err != nil {
		return nil, err
	}

	objs := objectstore.New(root, req.Depth, req.Width)
	if err := objs.SetupDirs(); err != nil {
		return nil, err
	}

	return &Store{
		root:  root,
		doc:   doc,
		depth: req.Depth,
		width: req.Width,
		objs:  objs,
		refs:  refstore.New(root, req.Depth, req.Width),
		locks: lock.NewTable(),
		defNS: req.MetadataNamespace,
		algo:  checksum.Algorithm(doc.StoreAlgorithm),
	}, nil
}

// ObjectMetadata is the outcome of a successful store_object call (§4.F).
type ObjectMetadata struct {
	Cid     string
	Size    int64
	Digests map[checksum.Algorithm]string
}

// StoreObjectOptions configures store_object (§4.F).
type StoreObjectOptions struct {
	// Pid tags the stored object with this persistent identifier. If
	// empty, the object is stored without creating any refs — the
	// caller obtains refs later via TagObject.
	Pid string

	// ExtraAlgorithm additionally computes this algorithm's digest, if
	// it is not already one of checksum.DefaultAlgorithms.
	ExtraAlgorithm checksum.Algorithm

	// ExpectedChecksum, if non-empty, is compared case-insensitively
	// against the digest computed under ChecksumAlgorithm.
	ExpectedChecksum string

	// ChecksumAlgorithm names the algorithm ExpectedChecksum was
	// computed with. Required when ExpectedChecksum is set.
	ChecksumAlgorithm checksum.Algorithm

	// ExpectedSize, when > 0, must equal the observed stream size or
	// the call fails with hserrors.ErrSizeMismatch. -1 means "no check";
	// 0 and any other negative value fail with hserrors.ErrInvalidArgument.
	ExpectedSize int64
}

func validatePid(pid string) error {
	if pid == "" {
		return fmt.Errorf("%w: pid must not be empty", hserrors.ErrInvalidArgument)
	}

	if len(pid) > layout.MaxPidLength {
		return fmt.Errorf("%w: pid exceeds maximum length", hserrors.ErrInvalidArgument)
	}

	if strings.ContainsAny(pid, "\n\t") {
		return fmt.Errorf("%w: pid must not contain newline or tab", hserrors.ErrInvalidArgument)
	}

	return nil
}

// StoreObject implements store_object (§4.F): it validates inputs,
// streams src into a temp file while computing the default digest set
// plus any requested extra/checksum algorithm, verifies size and
// checksum expectations, moves the temp file to its content-addressed
// location (deduplicating on an existing object with the same cid), and
// — when a pid is supplied — tags the object under the pid and cid
// locks before returning.
func (s *Store) StoreObject(ctx context.Context, src io.Reader, opts StoreObjectOptions) (*ObjectMetadata, error) {
	ctx, span := tracer.Start(ctx, "hashstore.StoreObject", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	if src == nil {
		return nil, fmt.Errorf("%w: stream must not be nil", hserrors.ErrInvalidArgument)
	}

	if opts.Pid != "" {
		if err := validatePid(opts.Pid); err != nil {
			return nil, err
		}
	}

	if opts.ExpectedSize != -1 && opts.ExpectedSize <= 0 {
		return nil, fmt.Errorf("%w: expected_size must be -1 or > 0", hserrors.ErrInvalidArgument)
	}

	algos := append([]checksum.Algorithm(nil), checksum.DefaultAlgorithms...)

	if opts.ExtraAlgorithm != "" {
		extra, err := checksum.Parse(string(opts.ExtraAlgorithm))
		if err != nil {
			return nil, err
		}

		opts.ExtraAlgorithm = extra

		if !checksum.Contains(algos, opts.ExtraAlgorithm) {
			algos = append(algos, opts.ExtraAlgorithm)
		}
	}

	if opts.ExpectedChecksum != "" {
		if opts.ChecksumAlgorithm == "" {
			return nil, fmt.Errorf("%w: checksum_algo required when expected_checksum is set", hserrors.ErrInvalidArgument)
		}

		checksumAlgo, err := checksum.Parse(string(opts.ChecksumAlgorithm))
		if err != nil {
			return nil, err
		}

		opts.ChecksumAlgorithm = checksumAlgo

		if !checksum.Contains(algos, opts.ChecksumAlgorithm) {
			algos = append(algos, opts.ChecksumAlgorithm)
		}
	}

	if !checksum.Contains(algos, s.algo) {
		algos = append(algos, s.algo)
	}

	run := func(ctx context.Context) (*ObjectMetadata, error) {
		return s.storeUnderLock(ctx, src, opts, algos)
	}

	if opts.Pid == "" {
		return run(ctx)
	}

	var (
		meta *ObjectMetadata
		err  error
	)

	lockErr := s.locks.WithPidLock(ctx, opts.Pid, func(ctx context.Context) error {
		meta, err = run(ctx)

		return err
	})
	if lockErr != nil && err == nil {
		return nil, lockErr
	}

	return meta, err
}

func (s *Store) storeUnderLock(ctx context.Context, src io.Reader, opts StoreObjectOptions, algos []checksum.Algorithm) (*ObjectMetadata, error) {
	result, err := s.objs.WriteTemp(ctx, src, algos, opts.ExpectedSize != -1)
	if err != nil {
		return nil, err
	}

	if opts.ExpectedSize != -1 && result.Size != opts.ExpectedSize {
		s.objs.RemoveTmp(result.TmpPath)

		return nil, fmt.Errorf("%w: expected %d bytes, observed %d", hserrors.ErrSizeMismatch, opts.ExpectedSize, result.Size)
	}

	if opts.ExpectedChecksum != "" {
		got := result.Digests[opts.ChecksumAlgorithm]
		if !checksum.HexEqual(got, opts.ExpectedChecksum) {
			s.objs.RemoveTmp(result.TmpPath)

			return nil, fmt.Errorf("%w: %s digest %s != expected %s", hserrors.ErrChecksumMismatch, opts.ChecksumAlgorithm, got, opts.ExpectedChecksum)
		}
	}

	cid := result.Digests[s.algo]

	objPath, err := s.objs.ObjectPath(cid)
	if err != nil {
		s.objs.RemoveTmp(result.TmpPath)

		return nil, err
	}

	if err := s.objs.Move(result.TmpPath, objPath); err != nil {
		s.objs.RemoveTmp(result.TmpPath)

		if !isAlreadyExists(err) {
			return nil, err
		}
		// dedup hit: the object already exists under this cid, keep it.
	}

	meta := &ObjectMetadata{Cid: cid, Size: result.Size, Digests: result.Digests}

	if opts.Pid == "" {
		return meta, nil
	}

	if err := s.tagUnderCidLock(ctx, opts.Pid, cid); err != nil {
		return nil, err
	}

	return meta, nil
}

func isAlreadyExists(err error) bool {
	return errors.Is(err, hserrors.ErrAlreadyExists)
}

// tagUnderCidLock performs the ref-writing half of store_object/tag_object:
// it must be called while the caller already holds the pid lock, and
// acquires the cid lock itself, consistent with the fixed lock ordering
// in §5 (pid before cid).
func (s *Store) tagUnderCidLock(ctx context.Context, pid, cid string) error {
	pidRefsPath, err := s.refs.PidRefsPath(pid)
	if err != nil {
		return err
	}

	return s.locks.WithCidLock(ctx, cid, func(ctx context.Context) error {
		if err := s.refs.WritePidRefs(ctx, pidRefsPath, cid); err != nil {
			if errors.Is(err, hserrors.ErrPidRefsFileExists) {
				return fmt.Errorf("%w: %w", hserrors.ErrPidAlreadyTagged, err)
			}

			return err
		}

		cidRefsPath, err := s.refs.CidRefsPath(cid)
		if err != nil {
			return err
		}

		if err := s.refs.CreateCidRefs(ctx, cidRefsPath, pid); err != nil {
			if !isAlreadyExists(err) {
				return err
			}

			return s.refs.UpdateCidRefs(ctx, cidRefsPath, pid, refstore.ADD)
		}

		return nil
	})
}

// TagObject implements tag_object (§4.F): binds pid to cid, failing with
// hserrors.ErrPidAlreadyTagged if pid is already bound to a different
// cid, and succeeding idempotently if (pid, cid) is already the current
// tag (L3).
func (s *Store) TagObject(ctx context.Context, pid, cid string) error {
	ctx, span := tracer.Start(
		ctx,
		"hashstore.TagObject",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cid", cid)),
	)
	defer span.End()

	if err := validatePid(pid); err != nil {
		return err
	}

	if cid == "" {
		return fmt.Errorf("%w: cid must not be empty", hserrors.ErrInvalidArgument)
	}

	return s.locks.WithPidLock(ctx, pid, func(ctx context.Context) error {
		pidRefsPath, err := s.refs.PidRefsPath(pid)
		if err != nil {
			return err
		}

		existing, err := s.refs.ReadPidRefs(ctx, pidRefsPath)
		if err == nil && existing != cid {
			return fmt.Errorf("%w: pid %s already tagged with %s", hserrors.ErrPidAlreadyTagged, pid, existing)
		}

		return s.tagUnderCidLock(ctx, pid, cid)
	})
}

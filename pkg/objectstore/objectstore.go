// Package objectstore implements the DigestStream and AtomicMover
// components (§4.B, §4.C): it consumes a byte stream into a private temp
// file while computing a fixed set of digests, then atomically moves the
// temp file to its final content-addressed location. It follows the
// teacher's pkg/storage/local PutNar/PutFile shape — temp file under a
// store-local tmp directory, then a move into place (here os.Link plus
// unlink, see Move, rather than os.Rename) — generalized to
// compute digests in flight the way the regclient ocidir blob writer
// layers a digester onto the write path with io.MultiWriter.
package objectstore

import (
	"context"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/layout"
)

const (
	fileMode = 0o440
	dirMode  = 0o750

	chunkSize = 8 * 1024

	otelPackageName = "github.com/DataONEorg/hashstore/pkg/objectstore"
)

//nolint:gochecknoglobals
var tracer trace.Tracer

//nolint:gochecknoinits
func init() {
	tracer = otel.Tracer(otelPackageName)
}

// Store provides access to the objects/ and metadata/ subtrees of a
// HashStore root.
type Store struct {
	root        string
	objectsDir  string
	tmpDir      string
	metadataDir string
	depth       int
	width       int
}

// New returns a Store rooted at root.
func New(root string, depth, width int) *Store {
	return &Store{
		root:        root,
		objectsDir:  filepath.Join(root, "objects"),
		tmpDir:      filepath.Join(root, "objects", "tmp"),
		metadataDir: filepath.Join(root, "metadata"),
		depth:       depth,
		width:       width,
	}
}

// SetupDirs idempotently creates objects/, objects/tmp/ and metadata/.
func (s *Store) SetupDirs() error {
	for _, p := range []string{s.objectsDir, s.tmpDir, s.metadataDir} {
		if err := os.MkdirAll(p, dirMode); err != nil {
			return fmt.Errorf("%w: creating %q: %w", hserrors.ErrIOFailure, p, err)
		}
	}

	return nil
}

// ObjectPath returns the absolute path an object with the given cid is
// stored at.
func (s *Store) ObjectPath(cid string) (string, error) {
	rel, err := layout.CidObjectPath(s.depth, s.width, cid)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.objectsDir, rel), nil
}

// DigestResult is the outcome of streaming a source into a temp file.
type DigestResult struct {
	// Size is the number of bytes read from the source.
	Size int64
	// Digests maps each computed algorithm to its lowercase hex digest.
	Digests map[checksum.Algorithm]string
	// TmpPath is the absolute path of the private temp file holding the
	// streamed bytes. The caller owns it: move it into place with Move,
	// or clean it up with RemoveTmp on any failure path.
	TmpPath string
}

// WriteTemp implements DigestStream (§4.B): it reads src in 8 KiB chunks,
// writing each chunk to a fresh temp file under objects/tmp/ while
// feeding it to a digester for every algorithm in algos. algos must
// already include the five defaults; callers add any requested extra or
// checksum-verification algorithm before calling.
//
// Fails with hserrors.ErrEmptyStream if expectNonEmpty is true and EOF is
// reached before any byte is read. An I/O error mid-stream unlinks the
// temp file and fails with hserrors.ErrIOFailure.
func (s *Store) WriteTemp(ctx context.Context, src io.Reader, algos []checksum.Algorithm, expectNonEmpty bool) (DigestResult, error) {
	ctx, span := tracer.Start(
		ctx,
		"objectstore.WriteTemp",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("algorithm_count", len(algos))),
	)
	defer span.End()

	if err := os.MkdirAll(s.tmpDir, dirMode); err != nil {
		return DigestResult{}, fmt.Errorf("%w: creating objects/tmp directory: %w", hserrors.ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "obj-"+uuid.NewString())
	if err != nil {
		return DigestResult{}, fmt.Errorf("%w: creating temp object file: %w", hserrors.ErrIOFailure, err)
	}

	tmpPath := tmp.Name()

	digesters := make(map[checksum.Algorithm]hash.Hash, len(algos))

	for _, a := range algos {
		h, err := checksum.New(a)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)

			return DigestResult{}, err
		}

		digesters[a] = h
	}

	writers := make([]io.Writer, 0, len(digesters)+1)
	writers = append(writers, tmp)

	for _, h := range digesters {
		writers = append(writers, h)
	}

	dest := io.MultiWriter(writers...)

	written, copyErr := io.CopyBuffer(dest, src, make([]byte, chunkSize))
	if copyErr != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return DigestResult{}, fmt.Errorf("%w: streaming into temp object file: %w", hserrors.ErrIOFailure, copyErr)
	}

	if written == 0 && expectNonEmpty {
		tmp.Close()
		os.Remove(tmpPath)

		return DigestResult{}, hserrors.ErrEmptyStream
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return DigestResult{}, fmt.Errorf("%w: closing temp object file: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.Chmod(tmpPath, fileMode); err != nil {
		os.Remove(tmpPath)

		return DigestResult{}, fmt.Errorf("%w: chmod temp object file: %w", hserrors.ErrIOFailure, err)
	}

	digestMap := make(map[checksum.Algorithm]string, len(digesters))
	for a, h := range digesters {
		digestMap[a] = fmt.Sprintf("%x", h.Sum(nil))
	}

	return DigestResult{Size: written, Digests: digestMap, TmpPath: tmpPath}, nil
}

// RemoveTmp unlinks a temp file produced by WriteTemp. Safe to call after
// a successful Move (the file is already gone) or on any failure path.
func (s *Store) RemoveTmp(tmpPath string) {
	os.Remove(tmpPath)
}

// Move implements AtomicMover (§4.C): it creates target's parent
// directories, then atomically links tmpPath into place at target and
// unlinks tmpPath, observably equivalent to a rename on success. If
// target already exists, it fails with hserrors.ErrAlreadyExists and
// leaves tmpPath in place for the caller to remove — this is the
// dedup-hit signal for objects and the conflict signal for refs creation
// paths that choose to reuse this helper.
//
// No content comparison is performed: two objects addressed by the same
// cid are assumed equal by construction of the address (§4.C).
func (s *Store) Move(tmpPath, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("%w: creating directories for %q: %w", hserrors.ErrIOFailure, target, err)
	}

	// os.Link is the atomic "create iff absent" primitive: unlike
	// os.Rename, which silently overwrites an existing target, Link fails
	// with EEXIST. Two concurrent Move calls for the same cid (§5: two
	// store_object calls producing the same cid may race up through
	// MOVED) must have exactly one winner see nil and the other see
	// AlreadyExists, with no window where both observe "absent".
	if err := os.Link(tmpPath, target); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", hserrors.ErrAlreadyExists, target)
		}

		return fmt.Errorf("%w: moving %q to %q: %w", hserrors.ErrIOFailure, tmpPath, target, err)
	}

	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing temp object file %q: %w", hserrors.ErrIOFailure, tmpPath, err)
	}

	return nil
}

// Exists reports whether an object file exists at the given absolute
// path.
func (s *Store) Exists(objectPath string) bool {
	_, err := os.Stat(objectPath)

	return err == nil
}

// Open returns the object's size and a reader for its content. The
// caller must close the returned io.ReadCloser.
func (s *Store) Open(objectPath string) (int64, io.ReadCloser, error) {
	info, err := os.Stat(objectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, hserrors.ErrNotFound
		}

		return 0, nil, fmt.Errorf("%w: stating object %q: %w", hserrors.ErrIOFailure, objectPath, err)
	}

	f, err := os.Open(objectPath)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: opening object %q: %w", hserrors.ErrIOFailure, objectPath, err)
	}

	return info.Size(), f, nil
}

// Delete removes the object file at objectPath. A missing file is not an
// error.
func (s *Store) Delete(objectPath string) error {
	if err := os.Remove(objectPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting object %q: %w", hserrors.ErrIOFailure, objectPath, err)
	}

	return nil
}

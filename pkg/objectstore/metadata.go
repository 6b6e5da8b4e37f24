package objectstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/layout"
)

func sha256Digester() hash.Hash {
	return sha256.New()
}

// MetadataPath returns the absolute path of the metadata document for
// (pid, namespace): metadata/<shard(sha256(pid))>/<hex(sha256(namespace))>.
func (s *Store) MetadataPath(pid, namespace string) (string, error) {
	rel, err := layout.MetadataDocPath(s.depth, s.width, pid, namespace)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.metadataDir, rel), nil
}

// WriteMetadata streams src to a temp file under metadata/'s tmp area
// and renames it over target, overwriting any existing document at the
// same address (§4.F store_metadata). It returns the bytes written and
// the SHA-256 hex digest of the content, computed only for integrity
// logging — metadata documents are not content-addressed.
func (s *Store) WriteMetadata(_ context.Context, target string, src io.Reader) (int64, string, error) {
	metaTmpDir := filepath.Join(s.metadataDir, "tmp")

	if err := os.MkdirAll(metaTmpDir, dirMode); err != nil {
		return 0, "", fmt.Errorf("%w: creating metadata/tmp directory: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return 0, "", fmt.Errorf("%w: creating metadata directories for %q: %w", hserrors.ErrIOFailure, target, err)
	}

	tmp, err := os.CreateTemp(metaTmpDir, "meta-"+uuid.NewString())
	if err != nil {
		return 0, "", fmt.Errorf("%w: creating temp metadata file: %w", hserrors.ErrIOFailure, err)
	}

	tmpPath := tmp.Name()

	digester := sha256Digester()
	dest := io.MultiWriter(tmp, digester)

	written, err := io.Copy(dest, src)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return 0, "", fmt.Errorf("%w: streaming metadata document: %w", hserrors.ErrIOFailure, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return 0, "", fmt.Errorf("%w: closing temp metadata file: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.Chmod(tmpPath, fileMode); err != nil {
		os.Remove(tmpPath)

		return 0, "", fmt.Errorf("%w: chmod temp metadata file: %w", hserrors.ErrIOFailure, err)
	}

	// Metadata overwrites the existing document at the same address, so a
	// plain rename (rather than Move's AlreadyExists check) is correct here.
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)

		return 0, "", fmt.Errorf("%w: moving metadata document into place: %w", hserrors.ErrIOFailure, err)
	}

	return written, fmt.Sprintf("%x", digester.Sum(nil)), nil
}

// OpenMetadata returns the size and a reader for the metadata document at
// target. The caller must close the returned io.ReadCloser.
func (s *Store) OpenMetadata(target string) (int64, io.ReadCloser, error) {
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, hserrors.ErrNotFound
		}

		return 0, nil, fmt.Errorf("%w: stating metadata document %q: %w", hserrors.ErrIOFailure, target, err)
	}

	f, err := os.Open(target)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: opening metadata document %q: %w", hserrors.ErrIOFailure, target, err)
	}

	return info.Size(), f, nil
}

// DeleteMetadata removes a metadata document. A missing file is not an
// error.
func (s *Store) DeleteMetadata(target string) error {
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting metadata document %q: %w", hserrors.ErrIOFailure, target, err)
	}

	return nil
}

// DeleteAllMetadataForPid removes every metadata document recorded for
// pid, across all namespaces, as part of delete_object's cleanup
// (§4.F). The namespace directory for pid is removed once emptied.
func (s *Store) DeleteAllMetadataForPid(pid string) error {
	rel, err := layout.Shard(s.depth, s.width, layout.PidDigestHex(pid))
	if err != nil {
		return err
	}

	dir := filepath.Join(s.metadataDir, rel)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: deleting metadata directory %q: %w", hserrors.ErrIOFailure, dir, err)
	}

	return nil
}

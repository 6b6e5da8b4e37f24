// Package refstore reads and writes the pid-refs and cid-refs files that
// maintain HashStore's many-to-one pid→cid mapping (§4.D). It mutates refs
// files the same way the teacher's pkg/storage/local writes object files:
// write to a private temp file, then atomic-rename over the destination —
// never mutate the final file in place (§9 "Crash-safe refs rewrite").
package refstore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/layout"
)

const (
	fileMode = 0o640
	dirMode  = 0o750
)

// Mode selects the mutation applied by UpdateCidRefs.
type Mode int

const (
	// ADD appends pid to the cid-refs file if not already present.
	ADD Mode = iota
	// REMOVE deletes the single matching pid line if present.
	REMOVE
)

// Store provides read/write access to the pid-refs and cid-refs files
// rooted at a store directory.
type Store struct {
	root    string
	depth   int
	width   int
	pidsDir string
	cidsDir string
	tmpDir  string
}

// New returns a Store rooted at root (the HashStore store root, containing
// refs/pids, refs/cids, refs/tmp).
func New(root string, depth, width int) *Store {
	return &Store{
		root:    root,
		depth:   depth,
		width:   width,
		pidsDir: filepath.Join(root, "refs", "pids"),
		cidsDir: filepath.Join(root, "refs", "cids"),
		tmpDir:  filepath.Join(root, "refs", "tmp"),
	}
}

// PidRefsPath returns the absolute path of the pid-refs file for pid.
func (s *Store) PidRefsPath(pid string) (string, error) {
	rel, err := layout.PidRefsPath(s.depth, s.width, pid)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.pidsDir, rel), nil
}

// CidRefsPath returns the absolute path of the cid-refs file for cid.
func (s *Store) CidRefsPath(cid string) (string, error) {
	rel, err := layout.CidRefsPath(s.depth, s.width, cid)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.cidsDir, rel), nil
}

// ReadPidRefs returns the cid a pid-refs file resolves to. Returns
// hserrors.ErrNotFound if the pid-refs file does not exist.
func (s *Store) ReadPidRefs(_ context.Context, pidRefsPath string) (string, error) {
	b, err := os.ReadFile(pidRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", hserrors.ErrNotFound
		}

		return "", fmt.Errorf("%w: reading pid-refs %q: %w", hserrors.ErrIOFailure, pidRefsPath, err)
	}

	return string(b), nil
}

// WritePidRefs writes a pid-refs file at pidRefsPath containing cid.
//
// If the destination already exists and names a different cid, it fails
// with hserrors.ErrPidRefsFileExists. If it already names the same cid, the
// call succeeds idempotently without touching the file (§4.F tag_object
// idempotence, L3).
func (s *Store) WritePidRefs(ctx context.Context, pidRefsPath, cid string) error {
	existing, err := s.ReadPidRefs(ctx, pidRefsPath)
	if err == nil {
		if existing == cid {
			return nil
		}

		return fmt.Errorf("%w: %s", hserrors.ErrPidRefsFileExists, pidRefsPath)
	} else if err != hserrors.ErrNotFound {
		return err
	}

	return s.writeFileAtomic(pidRefsPath, []byte(cid))
}

// OverwritePidRefs unconditionally replaces the pid-refs file's contents
// with cid (§4.D orphan pid-refs). The hashstore pipeline does not call
// it: TagObject and StoreObject never overwrite an existing pid-refs file.
func (s *Store) OverwritePidRefs(_ context.Context, pidRefsPath, cid string) error {
	return s.writeFileAtomic(pidRefsPath, []byte(cid))
}

// DeletePidRefs removes a pid-refs file. A missing file is not an error.
func (s *Store) DeletePidRefs(_ context.Context, pidRefsPath string) error {
	if err := os.Remove(pidRefsPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting pid-refs %q: %w", hserrors.ErrIOFailure, pidRefsPath, err)
	}

	return nil
}

// CreateCidRefs creates a new cid-refs file containing exactly pid. Fails
// with hserrors.ErrAlreadyExists if the destination already exists; callers
// must fall back to UpdateCidRefs in that case (§4.D).
func (s *Store) CreateCidRefs(_ context.Context, cidRefsPath, pid string) error {
	if err := os.MkdirAll(filepath.Dir(cidRefsPath), dirMode); err != nil {
		return fmt.Errorf("%w: creating refs/cids directories: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.MkdirAll(s.tmpDir, dirMode); err != nil {
		return fmt.Errorf("%w: creating refs/tmp directory: %w", hserrors.ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "cidrefs-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("%w: creating temp cid-refs file: %w", hserrors.ErrIOFailure, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.WriteString(pid + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: writing temp cid-refs file: %w", hserrors.ErrIOFailure, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: closing temp cid-refs file: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.Chmod(tmpName, fileMode); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: chmod temp cid-refs file: %w", hserrors.ErrIOFailure, err)
	}

	// os.Link is the atomic "create iff absent" primitive: unlike
	// os.Rename it fails with EEXIST rather than silently overwriting an
	// existing destination.
	if err := os.Link(tmpName, cidRefsPath); err != nil {
		os.Remove(tmpName)

		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", hserrors.ErrAlreadyExists, cidRefsPath)
		}

		return fmt.Errorf("%w: linking cid-refs into place: %w", hserrors.ErrIOFailure, err)
	}

	os.Remove(tmpName)

	return nil
}

// ReadCidRefs returns the distinct pids currently tagging cid, in insertion
// order. Returns hserrors.ErrNotFound if no cid-refs file exists.
func (s *Store) ReadCidRefs(_ context.Context, cidRefsPath string) ([]string, error) {
	f, err := os.Open(cidRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, hserrors.ErrNotFound
		}

		return nil, fmt.Errorf("%w: opening cid-refs %q: %w", hserrors.ErrIOFailure, cidRefsPath, err)
	}

	defer f.Close()

	var pids []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		pids = append(pids, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading cid-refs %q: %w", hserrors.ErrIOFailure, cidRefsPath, err)
	}

	return pids, nil
}

// IsPidInCidRefs reports whether pid appears as an exact line in the
// cid-refs file at cidRefsPath.
func (s *Store) IsPidInCidRefs(ctx context.Context, cidRefsPath, pid string) (bool, error) {
	pids, err := s.ReadCidRefs(ctx, cidRefsPath)
	if err != nil {
		if err == hserrors.ErrNotFound {
			return false, nil
		}

		return false, err
	}

	for _, p := range pids {
		if p == pid {
			return true, nil
		}
	}

	return false, nil
}

// UpdateCidRefs adds or removes pid from the cid-refs file at cidRefsPath.
// Both ADD and REMOVE are no-ops when the target state already holds (§4.D).
// The file is rewritten via a temp-and-rename sequence so a reader never
// observes a torn file (§8 P5): the result is either the pre-image or the
// full post-image, never a partial write.
func (s *Store) UpdateCidRefs(ctx context.Context, cidRefsPath, pid string, mode Mode) error {
	pids, err := s.ReadCidRefs(ctx, cidRefsPath)
	if err != nil {
		return err
	}

	next, changed := applyMode(pids, pid, mode)
	if !changed {
		return nil
	}

	var b strings.Builder
	for _, p := range next {
		b.WriteString(p)
		b.WriteString("\n")
	}

	return s.writeFileAtomic(cidRefsPath, []byte(b.String()))
}

func applyMode(pids []string, pid string, mode Mode) ([]string, bool) {
	switch mode {
	case ADD:
		for _, p := range pids {
			if p == pid {
				return pids, false
			}
		}

		return append(pids, pid), true
	case REMOVE:
		out := make([]string, 0, len(pids))

		removed := false

		for _, p := range pids {
			if p == pid && !removed {
				removed = true

				continue
			}

			out = append(out, p)
		}

		return out, removed
	default:
		return pids, false
	}
}

// DeleteCidRefs removes a cid-refs file. A missing file is not an error.
func (s *Store) DeleteCidRefs(_ context.Context, cidRefsPath string) error {
	if err := os.Remove(cidRefsPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: deleting cid-refs %q: %w", hserrors.ErrIOFailure, cidRefsPath, err)
	}

	return nil
}

// VerifyRefs checks that pid-refs content equals cid, and that cid-refs
// contains pid on its own line (§4.D).
func (s *Store) VerifyRefs(ctx context.Context, pidRefsPath, cidRefsPath, pid, cid string) error {
	got, err := s.ReadPidRefs(ctx, pidRefsPath)
	if err != nil {
		return err
	}

	if got != cid {
		return fmt.Errorf("%w: pid-refs names %q, expected %q", hserrors.ErrCidMismatch, got, cid)
	}

	ok, err := s.IsPidInCidRefs(ctx, cidRefsPath, pid)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: %s not listed in %s", hserrors.ErrPidNotInCidRefs, pid, cidRefsPath)
	}

	return nil
}

// writeFileAtomic writes data to a private temp file under refs/tmp and
// atomically renames it over target.
func (s *Store) writeFileAtomic(target string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), dirMode); err != nil {
		return fmt.Errorf("%w: creating directories for %q: %w", hserrors.ErrIOFailure, target, err)
	}

	if err := os.MkdirAll(s.tmpDir, dirMode); err != nil {
		return fmt.Errorf("%w: creating refs/tmp directory: %w", hserrors.ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "refs-"+uuid.NewString())
	if err != nil {
		return fmt.Errorf("%w: creating temp refs file: %w", hserrors.ErrIOFailure, err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("%w: writing temp refs file: %w", hserrors.ErrIOFailure, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: closing temp refs file: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.Chmod(tmpName, fileMode); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: chmod temp refs file: %w", hserrors.ErrIOFailure, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("%w: renaming refs file into place: %w", hserrors.ErrIOFailure, err)
	}

	return nil
}

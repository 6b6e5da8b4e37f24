// Package layout maps hex digests and pids to the sharded relative paths
// HashStore uses on disk, the way pkg/storage/local in the teacher repo maps a
// nar hash to a path under the store root, generalized to an arbitrary
// configurable depth and width (§4.A).
package layout

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
)

// MaxPidLength is the conservative upper bound on pid length enforced by the
// pipeline's validation pass (§4.F).
const MaxPidLength = 1024

// ErrInvalidDepthWidth is returned when depth or width is not a positive
// integer.
var ErrInvalidDepthWidth = errors.New("layout: depth and width must be >= 1")

// Shard splits hex into depth groups of width characters each, used as
// directory segments, followed by the remaining suffix as the filename
// (§3 "Address"). If hex is shorter than depth*width, the trailing groups
// that don't fit are silently dropped and the full remaining string becomes
// the suffix (§4.A).
func Shard(depth, width int, hex string) (string, error) {
	if depth < 1 || width < 1 {
		return "", ErrInvalidDepthWidth
	}

	segments := make([]string, 0, depth+1)

	rest := hex
	for i := 0; i < depth; i++ {
		if len(rest) < width {
			break
		}

		segments = append(segments, rest[:width])
		rest = rest[width:]
	}

	segments = append(segments, rest)

	return filepath.Join(segments...), nil
}

// PidDigestHex returns the lowercase hex SHA-256 digest of pid. Pid-refs
// filenames are always addressed by SHA-256 of the pid regardless of the
// store's configured content algorithm (§3, I4) — see DESIGN.md for why this
// is fixed independent of the store algorithm.
func PidDigestHex(pid string) string {
	sum := sha256.Sum256([]byte(pid))

	return hex.EncodeToString(sum[:])
}

// NamespaceDigestHex returns the lowercase hex SHA-256 digest of namespace,
// used for the metadata document filename (§3).
func NamespaceDigestHex(namespace string) string {
	sum := sha256.Sum256([]byte(namespace))

	return hex.EncodeToString(sum[:])
}

// PidRefsPath returns the relative path (under refs/pids/) of the pid-refs
// file for pid.
func PidRefsPath(depth, width int, pid string) (string, error) {
	p, err := Shard(depth, width, PidDigestHex(pid))
	if err != nil {
		return "", fmt.Errorf("layout: pid-refs path for %q: %w", pid, err)
	}

	return p, nil
}

// CidObjectPath returns the relative path (under objects/) of the data
// object addressed by cid.
func CidObjectPath(depth, width int, cid string) (string, error) {
	p, err := Shard(depth, width, cid)
	if err != nil {
		return "", fmt.Errorf("layout: object path for cid %q: %w", cid, err)
	}

	return p, nil
}

// CidRefsPath returns the relative path (under refs/cids/) of the cid-refs
// file for cid.
func CidRefsPath(depth, width int, cid string) (string, error) {
	return CidObjectPath(depth, width, cid)
}

// MetadataDocPath returns the relative path (under metadata/) of the
// metadata document for (pid, namespace).
func MetadataDocPath(depth, width int, pid, namespace string) (string, error) {
	pidDir, err := Shard(depth, width, PidDigestHex(pid))
	if err != nil {
		return "", fmt.Errorf("layout: metadata path for %q: %w", pid, err)
	}

	return filepath.Join(pidDir, NamespaceDigestHex(namespace)), nil
}

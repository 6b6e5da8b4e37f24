// Package checksum implements the fixed, closed set of digest algorithms that
// HashStore is allowed to compute and verify against.
//
// The set never grows at runtime: callers name an algorithm by a
// case-insensitive string, the package canonicalizes it, and anything outside
// the eight supported variants is rejected before any bytes are read.
package checksum

import (
	"crypto/md5"  //nolint:gosec // part of the fixed legacy algorithm set, not used for security
	"crypto/sha1" //nolint:gosec // part of the fixed legacy algorithm set, not used for security
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/md2" //nolint:staticcheck // part of the fixed legacy algorithm set

	"github.com/DataONEorg/hashstore/pkg/hserrors"
)

// Algorithm is one of the eight digest algorithms HashStore knows how to
// compute. The zero value is not a valid algorithm.
type Algorithm string

// The closed set of supported algorithms, canonical spelling.
const (
	MD2         Algorithm = "MD2"
	MD5         Algorithm = "MD5"
	SHA1        Algorithm = "SHA-1"
	SHA256      Algorithm = "SHA-256"
	SHA384      Algorithm = "SHA-384"
	SHA512      Algorithm = "SHA-512"
	SHA512_224  Algorithm = "SHA-512/224"
	SHA512_256  Algorithm = "SHA-512/256"
)

// DefaultAlgorithms are computed for every stored object regardless of what
// the caller asks for.
var DefaultAlgorithms = []Algorithm{MD5, SHA1, SHA256, SHA384, SHA512}

// ErrUnsupportedAlgorithm is returned when a caller names an algorithm
// outside the closed supported set. It wraps hserrors.ErrUnsupportedAlgorithm
// so pipeline-level callers can errors.Is against either.
var ErrUnsupportedAlgorithm = fmt.Errorf("checksum: %w", hserrors.ErrUnsupportedAlgorithm)

// canonicalByFold maps a case-folded algorithm name to its canonical form.
// Input is accepted in any case and with or without the "-"/"/" separators.
var canonicalByFold = buildCanonicalIndex()

func buildCanonicalIndex() map[string]Algorithm {
	all := []Algorithm{MD2, MD5, SHA1, SHA256, SHA384, SHA512, SHA512_224, SHA512_256}

	idx := make(map[string]Algorithm, len(all)*2)
	for _, a := range all {
		idx[fold(string(a))] = a
	}

	return idx
}

func fold(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "_", "")

	return name
}

// Parse canonicalizes an algorithm name supplied by a caller (case- and
// separator-insensitive) and fails with ErrUnsupportedAlgorithm if it does
// not name one of the eight supported algorithms.
func Parse(name string) (Algorithm, error) {
	a, ok := canonicalByFold[fold(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}

	return a, nil
}

// New returns a fresh hash.Hash for the algorithm. Only called with an
// Algorithm that has already been validated by Parse.
func New(a Algorithm) (hash.Hash, error) {
	switch a {
	case MD2:
		return md2.New(), nil
	case MD5:
		return md5.New(), nil //nolint:gosec
	case SHA1:
		return sha1.New(), nil //nolint:gosec
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	case SHA512_224:
		return sha512.New512_224(), nil
	case SHA512_256:
		return sha512.New512_256(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, a)
	}
}

// HexEqual reports whether two hex-encoded digests are equal, normalizing
// case before comparing. This is an integrity check, not a secret
// comparison, so constant-time comparison is not required (§4.H).
func HexEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Contains reports whether algos already contains a.
func Contains(algos []Algorithm, a Algorithm) bool {
	for _, x := range algos {
		if x == a {
			return true
		}
	}

	return false
}

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/config"
	"github.com/DataONEorg/hashstore/pkg/hserrors"
)

func req() config.Request {
	return config.Request{
		Depth:             3,
		Width:             2,
		Algorithm:         checksum.SHA256,
		MetadataNamespace: "https://ns.example/sysmeta",
	}
}

func TestInit_CreatesDocumentAndSubdirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	doc, err := config.Init(root, req())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.StoreDepth)
	assert.Equal(t, 2, doc.StoreWidth)
	assert.Equal(t, "SHA-256", doc.StoreAlgorithm)

	for _, d := range []string{
		filepath.Join(root, "objects"),
		filepath.Join(root, "objects", "tmp"),
		filepath.Join(root, "metadata"),
		filepath.Join(root, "refs", "pids"),
		filepath.Join(root, "refs", "cids"),
		filepath.Join(root, "refs", "tmp"),
	} {
		info, statErr := os.Stat(d)
		require.NoError(t, statErr, d)
		assert.True(t, info.IsDir())
	}

	_, statErr := os.Stat(filepath.Join(root, config.FileName))
	require.NoError(t, statErr)
}

func TestInit_ReopenWithSameRequestSucceeds(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := config.Init(root, req())
	require.NoError(t, err)

	doc2, err := config.Init(root, req())
	require.NoError(t, err)
	assert.Equal(t, 3, doc2.StoreDepth)
}

func TestInit_ReopenWithDifferentDepthRejected(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := config.Init(root, req())
	require.NoError(t, err)

	mismatched := req()
	mismatched.Depth = 4

	_, err = config.Init(root, mismatched)
	require.ErrorIs(t, err, config.ErrMismatch)
}

func TestInit_ReopenWithDifferentAlgorithmRejected(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := config.Init(root, req())
	require.NoError(t, err)

	mismatched := req()
	mismatched.Algorithm = checksum.MD5

	_, err = config.Init(root, mismatched)
	require.ErrorIs(t, err, config.ErrMismatch)
}

func TestInit_RefusesPreexistingNonEmptyRootWithoutConfig(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o640))

	_, err := config.Init(root, req())
	require.ErrorIs(t, err, config.ErrRootNotEmpty)
}

func TestInit_RejectsBadDepthWidth(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	bad := req()
	bad.Depth = 0

	_, err := config.Init(root, bad)
	require.ErrorIs(t, err, hserrors.ErrInvalidArgument)
}

func TestInit_RejectsUnsupportedAlgorithm(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	bad := req()
	bad.Algorithm = checksum.Algorithm("blake3")

	_, err := config.Init(root, bad)
	require.ErrorIs(t, err, hserrors.ErrUnsupportedAlgorithm)
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := config.Load(root)
	require.ErrorIs(t, err, hserrors.ErrNotFound)
}

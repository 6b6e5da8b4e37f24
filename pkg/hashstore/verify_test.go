package hashstore_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/checksum"
	"github.com/DataONEorg/hashstore/pkg/config"
	"github.com/DataONEorg/hashstore/pkg/hashstore"
	"github.com/DataONEorg/hashstore/pkg/layout"
)

func openStoreAt(t *testing.T, root string) *hashstore.Store {
	t.Helper()

	s, err := hashstore.Open(root, config.Request{
		Depth:             3,
		Width:             2,
		Algorithm:         checksum.SHA256,
		MetadataNamespace: "https://ns.example/sysmeta",
	})
	require.NoError(t, err)

	return s
}

func TestVerify_CleanStoreHasNoIssues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openStore(t)

	_, err := s.StoreObject(ctx, strings.NewReader("payload"), hashstore.StoreObjectOptions{
		Pid: "pid.1", ExpectedSize: -1,
	})
	require.NoError(t, err)

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.HasIssues())
}

func TestVerify_DetectsMissingObject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	s := openStoreAt(t, root)

	meta, err := s.StoreObject(ctx, strings.NewReader("payload"), hashstore.StoreObjectOptions{
		Pid: "pid.1", ExpectedSize: -1,
	})
	require.NoError(t, err)

	// Simulate an object lost out-of-band (e.g. disk corruption), leaving
	// its cid-refs file behind, by removing the object file directly.
	objRel, err := layout.CidObjectPath(3, 2, meta.Cid)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "objects", objRel)))

	report, err := s.Verify(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.MissingObjects)
}

package refstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/hserrors"
	"github.com/DataONEorg/hashstore/pkg/refstore"
)

func newStore(t *testing.T) *refstore.Store {
	t.Helper()

	return refstore.New(t.TempDir(), 3, 2)
}

func TestWritePidRefs_CreateThenIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.PidRefsPath("pid.hello.1")
	require.NoError(t, err)

	require.NoError(t, s.WritePidRefs(ctx, path, "cid-a"))

	got, err := s.ReadPidRefs(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "cid-a", got)

	// same (pid, cid) is idempotent
	require.NoError(t, s.WritePidRefs(ctx, path, "cid-a"))
}

func TestWritePidRefs_ConflictingCid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.PidRefsPath("pid.hello.1")
	require.NoError(t, err)

	require.NoError(t, s.WritePidRefs(ctx, path, "cid-a"))

	err = s.WritePidRefs(ctx, path, "cid-b")
	require.ErrorIs(t, err, hserrors.ErrPidRefsFileExists)
}

func TestReadPidRefs_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.PidRefsPath("missing")
	require.NoError(t, err)

	_, err = s.ReadPidRefs(ctx, path)
	require.ErrorIs(t, err, hserrors.ErrNotFound)
}

func TestCreateCidRefs_ThenAlreadyExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.CreateCidRefs(ctx, path, "pid.1"))

	err = s.CreateCidRefs(ctx, path, "pid.2")
	require.ErrorIs(t, err, hserrors.ErrAlreadyExists)

	pids, err := s.ReadCidRefs(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pid.1"}, pids)
}

func TestUpdateCidRefs_AddIsIdempotentAndOrdered(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.CreateCidRefs(ctx, path, "pid.1"))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.2", refstore.ADD))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.2", refstore.ADD)) // no dup

	pids, err := s.ReadCidRefs(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pid.1", "pid.2"}, pids)
}

func TestUpdateCidRefs_Remove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.CreateCidRefs(ctx, path, "pid.1"))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.2", refstore.ADD))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.1", refstore.REMOVE))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.1", refstore.REMOVE)) // no-op

	pids, err := s.ReadCidRefs(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pid.2"}, pids)
}

func TestVerifyRefs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	pidPath, err := s.PidRefsPath("pid.1")
	require.NoError(t, err)

	cidPath, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.WritePidRefs(ctx, pidPath, "cid-a"))
	require.NoError(t, s.CreateCidRefs(ctx, cidPath, "pid.1"))

	require.NoError(t, s.VerifyRefs(ctx, pidPath, cidPath, "pid.1", "cid-a"))

	err = s.VerifyRefs(ctx, pidPath, cidPath, "pid.1", "cid-b")
	require.ErrorIs(t, err, hserrors.ErrCidMismatch)
}

func TestVerifyRefs_PidNotInCidRefs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	pidPath, err := s.PidRefsPath("pid.1")
	require.NoError(t, err)

	cidPath, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.WritePidRefs(ctx, pidPath, "cid-a"))
	require.NoError(t, s.CreateCidRefs(ctx, cidPath, "pid.other"))

	err = s.VerifyRefs(ctx, pidPath, cidPath, "pid.1", "cid-a")
	require.ErrorIs(t, err, hserrors.ErrPidNotInCidRefs)
}

func TestUpdateCidRefs_NoTornWriteOnDisk(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	path, err := s.CidRefsPath("cid-a")
	require.NoError(t, err)

	require.NoError(t, s.CreateCidRefs(ctx, path, "pid.1"))
	require.NoError(t, s.UpdateCidRefs(ctx, path, "pid.2", refstore.ADD))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pid.1\npid.2\n", string(b))
}

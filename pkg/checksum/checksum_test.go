package checksum_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataONEorg/hashstore/pkg/checksum"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want checksum.Algorithm
	}{
		{"sha256", checksum.SHA256},
		{"SHA-256", checksum.SHA256},
		{"Sha256", checksum.SHA256},
		{"md5", checksum.MD5},
		{"MD5", checksum.MD5},
		{"sha-1", checksum.SHA1},
		{"SHA1", checksum.SHA1},
		{"sha512/224", checksum.SHA512_224},
		{"SHA-512/256", checksum.SHA512_256},
		{"md2", checksum.MD2},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := checksum.Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := checksum.Parse("blake3")
	require.ErrorIs(t, err, checksum.ErrUnsupportedAlgorithm)
}

func TestNew_ProducesCanonicalLengthDigests(t *testing.T) {
	t.Parallel()

	lengths := map[checksum.Algorithm]int{
		checksum.MD2:        32,
		checksum.MD5:        32,
		checksum.SHA1:       40,
		checksum.SHA256:     64,
		checksum.SHA384:     96,
		checksum.SHA512:     128,
		checksum.SHA512_224: 56,
		checksum.SHA512_256: 64,
	}

	for algo, wantLen := range lengths {
		h, err := checksum.New(algo)
		require.NoError(t, err)

		_, err = h.Write([]byte("hello"))
		require.NoError(t, err)

		sum := h.Sum(nil)
		assert.Len(t, hex.EncodeToString(sum), wantLen)
	}
}

func TestHexEqual(t *testing.T) {
	t.Parallel()

	assert.True(t, checksum.HexEqual("DEADBEEF", "deadbeef"))
	assert.False(t, checksum.HexEqual("deadbeef", "deadbeee"))
}

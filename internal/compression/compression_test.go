package compression_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/compression"
)

func TestFromString(t *testing.T) {
	algo, err := compression.FromString("gzip")
	require.NoError(t, err)
	require.Equal(t, compression.Gzip, algo)

	algo, err = compression.FromString("")
	require.NoError(t, err)
	require.Equal(t, compression.None, algo)

	_, err = compression.FromString("zstd")
	require.Error(t, err)
}

func TestFromCodeRoundTrip(t *testing.T) {
	for _, algo := range []compression.Algorithm{compression.None, compression.Gzip} {
		got, err := compression.FromCode(algo.Code())
		require.NoError(t, err)
		require.Equal(t, algo, got)
	}
	_, err := compression.FromCode(99)
	require.Error(t, err)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated, repeated, repeated")

	for _, algo := range []compression.Algorithm{compression.None, compression.Gzip} {
		compressed, err := compression.Compress(algo, payload)
		require.NoError(t, err)

		decompressed, err := compression.Decompress(algo, compressed)
		require.NoError(t, err)
		require.Equal(t, payload, decompressed)
	}
}

func TestCompressGzipShrinksRepetitiveInput(t *testing.T) {
	payload := make([]byte, 4096)
	compressed, err := compression.Compress(compression.Gzip, payload)
	require.NoError(t, err)
	require.Less(t, len(compressed), len(payload))
}

func TestDecompressCorruptDataFails(t *testing.T) {
	_, err := compression.Decompress(compression.Gzip, []byte("not gzip data"))
	require.Error(t, err)
}

package flowerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

func TestNewSetsKindOpAndMessage(t *testing.T) {
	err := flowerr.New(flowerr.KindNotFound, "stream.Get", "stream not found")
	require.EqualError(t, err, "stream.Get: stream not found")
	require.Equal(t, flowerr.KindNotFound, flowerr.KindOf(err))
}

func TestNewfFormatsMessage(t *testing.T) {
	err := flowerr.Newf(flowerr.KindInvalidInput, "topic.Create", "bad partition count %d", 0)
	require.EqualError(t, err, "topic.Create: bad partition count 0")
}

func TestWrapPreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := flowerr.Wrap(flowerr.KindFatalIO, "segment.append", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, flowerr.KindFatalIO, flowerr.KindOf(err))
	require.Contains(t, err.Error(), "disk full")
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	require.NoError(t, flowerr.Wrap(flowerr.KindFatalIO, "segment.append", nil))
}

func TestIsMatchesKindAcrossWrapping(t *testing.T) {
	inner := flowerr.New(flowerr.KindCorruption, "segment.decode", "checksum mismatch")
	outer := flowerr.Wrap(flowerr.KindTransientIO, "partition.ReadRange", inner)
	require.True(t, flowerr.Is(outer, flowerr.KindTransientIO))
	require.False(t, flowerr.Is(outer, flowerr.KindCorruption), "KindOf reports the outermost Kind, not an inner wrapped one")
}

func TestKindOfReturnsUnknownForPlainError(t *testing.T) {
	require.Equal(t, flowerr.KindUnknown, flowerr.KindOf(errors.New("plain")))
}

func TestKindStringCoversEveryConstant(t *testing.T) {
	kinds := []flowerr.Kind{
		flowerr.KindUnknown, flowerr.KindInvalidInput, flowerr.KindNotFound,
		flowerr.KindAlreadyExists, flowerr.KindPermissionDenied, flowerr.KindAuthenticationFailed,
		flowerr.KindResourceLimit, flowerr.KindTransientIO, flowerr.KindFatalIO,
		flowerr.KindCorruption, flowerr.KindSegmentClosed, flowerr.KindInvalidOffset,
		flowerr.KindShutdownInProgress,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		require.NotEmpty(t, s)
		require.False(t, seen[s], "duplicate Kind.String() value %q", s)
		seen[s] = true
	}
}

func TestKindStringDefaultsToUnknown(t *testing.T) {
	require.Equal(t, "unknown", flowerr.Kind(999).String())
}

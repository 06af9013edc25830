package identifier_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/identifier"
)

func TestNameLowerCasesAndValidatesCharset(t *testing.T) {
	id, err := identifier.Name("My-Stream.01")
	require.NoError(t, err)
	require.True(t, id.IsName())
	require.Equal(t, "my-stream.01", id.NameValue())
}

func TestNameRejectsInvalidCharacters(t *testing.T) {
	_, err := identifier.Name("bad name!")
	require.Error(t, err)
}

func TestNameRejectsLengthOutOfRange(t *testing.T) {
	_, err := identifier.Name("")
	require.Error(t, err)

	long := make([]byte, identifier.MaxNameLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = identifier.Name(string(long))
	require.Error(t, err)
}

func TestNumericRoundTripsThroughEncodeDecode(t *testing.T) {
	id := identifier.Numeric(42)
	encoded := id.Encode()

	decoded, n, err := identifier.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, decoded.IsNumeric())
	require.Equal(t, uint32(42), decoded.NumericValue())
}

func TestNameRoundTripsThroughEncodeDecode(t *testing.T) {
	id, err := identifier.Name("orders")
	require.NoError(t, err)
	encoded := id.Encode()

	decoded, n, err := identifier.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), n)
	require.True(t, decoded.IsName())
	require.Equal(t, "orders", decoded.NameValue())
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, _, err := identifier.Decode([]byte{1})
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedValue(t *testing.T) {
	_, _, err := identifier.Decode([]byte{byte(identifier.KindName), 10, 'a', 'b'})
	require.Error(t, err)
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, _, err := identifier.Decode([]byte{99, 0})
	require.Error(t, err)
}

func TestDecodeRejectsWrongNumericLength(t *testing.T) {
	_, _, err := identifier.Decode([]byte{byte(identifier.KindNumeric), 2, 0, 0})
	require.Error(t, err)
}

func TestRegistryReserveBindResolveRelease(t *testing.T) {
	r := identifier.NewRegistry()

	id1, err := r.Reserve("alpha")
	require.NoError(t, err)
	require.Equal(t, uint32(1), id1)

	_, err = r.Reserve("alpha")
	require.Error(t, err, "reserving an already-bound name must fail")

	nameID, err := identifier.Name("alpha")
	require.NoError(t, err)
	resolved, ok := r.Resolve(nameID)
	require.True(t, ok)
	require.Equal(t, id1, resolved)

	resolvedNumeric, ok := r.Resolve(identifier.Numeric(id1))
	require.True(t, ok)
	require.Equal(t, id1, resolvedNumeric)

	r.Release("alpha")
	_, ok = r.Resolve(nameID)
	require.False(t, ok)
}

func TestRegistryBindAdvancesNextID(t *testing.T) {
	r := identifier.NewRegistry()
	require.NoError(t, r.Bind("restored", 7))

	next, err := r.Reserve("fresh")
	require.NoError(t, err)
	require.Equal(t, uint32(8), next)

	require.ElementsMatch(t, []string{"restored", "fresh"}, r.Names())
}

func TestRegistryBindRejectsDuplicateName(t *testing.T) {
	r := identifier.NewRegistry()
	require.NoError(t, r.Bind("dup", 1))
	require.Error(t, r.Bind("dup", 2))
}

package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/model"
)

func msgWithPayload(offset uint64, n int) model.Message {
	return model.Message{Offset: offset, Payload: make([]byte, n)}
}

func TestLRUGetMiss(t *testing.T) {
	c := cache.NewLRU(1024)
	_, ok := c.Get(1, 0)
	require.False(t, ok)
	require.Equal(t, int64(1), c.Stats().Misses)
}

func TestLRUPutGetHit(t *testing.T) {
	c := cache.NewLRU(1024)
	m := msgWithPayload(5, 16)
	c.Put(1, m)

	got, ok := c.Get(1, 5)
	require.True(t, ok)
	require.Equal(t, uint64(5), got.Offset)
	require.Equal(t, int64(1), c.Stats().Hits)
}

func TestLRUEvictsOldestOnOverCapacity(t *testing.T) {
	// Each entry costs len(payload)+64. Capacity fits exactly one 64-byte
	// payload entry (128 bytes); a second Put must evict the first.
	c := cache.NewLRU(128)
	c.Put(1, msgWithPayload(0, 64))
	c.Put(1, msgWithPayload(1, 64))

	_, ok := c.Get(1, 0)
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get(1, 1)
	require.True(t, ok)
	require.Equal(t, int64(1), c.Stats().Evictions)
}

func TestLRUDeletePartitionClearsOnlyThatPartition(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	c.Put(1, msgWithPayload(0, 8))
	c.Put(2, msgWithPayload(0, 8))

	c.DeletePartition(1)

	_, ok := c.Get(1, 0)
	require.False(t, ok)
	_, ok = c.Get(2, 0)
	require.True(t, ok)
}

func TestLRUEvictFractionDropsProportionalShare(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	for i := uint64(0); i < 10; i++ {
		c.Put(1, msgWithPayload(i, 8))
	}

	evicted := c.EvictFraction(1, 0.5)
	require.Equal(t, 5, evicted)
	require.Equal(t, 5, c.Stats().Entries)
}

func TestLRUSetCapacityEvictsImmediately(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	for i := uint64(0); i < 4; i++ {
		c.Put(1, msgWithPayload(i, 64))
	}
	require.Equal(t, 4, c.Stats().Entries)

	c.SetCapacity(128)
	require.LessOrEqual(t, c.Stats().UsedBytes, int64(128))
}

func TestLRUFractionUsedByPartition(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	c.Put(1, msgWithPayload(0, 64))
	c.Put(2, msgWithPayload(0, 64))

	require.InDelta(t, 0.5, c.FractionUsedByPartition(1), 0.01)
}

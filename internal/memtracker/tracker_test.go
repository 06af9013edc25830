package memtracker_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/memtracker"
	"github.com/ridgeline/flowvault/internal/model"
)

func TestNewAppliesCapacityToCache(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	tr := memtracker.New(c, 128, zap.NewNop())
	require.Equal(t, int64(128), tr.CapacityBytes())
	require.Equal(t, int64(128), c.Stats().CapacityBytes)
}

func TestResizeAppliesImmediately(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	tr := memtracker.New(c, 1<<20, zap.NewNop())

	c.Put(1, model.Message{Offset: 0, Payload: make([]byte, 64)})
	tr.Resize(32)
	require.LessOrEqual(t, c.Stats().UsedBytes, int64(32))
}

func TestEvictFromPartition(t *testing.T) {
	c := cache.NewLRU(1 << 20)
	tr := memtracker.New(c, 1<<20, zap.NewNop())

	for i := uint64(0); i < 4; i++ {
		c.Put(1, model.Message{Offset: i, Payload: make([]byte, 8)})
	}
	evicted := tr.EvictFromPartition(1, 0.5)
	require.Equal(t, 2, evicted)
}

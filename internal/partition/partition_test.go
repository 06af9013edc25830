package partition_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
)

func testSystem(t *testing.T) *config.SystemConfig {
	t.Helper()
	return &config.SystemConfig{Path: t.TempDir()}
}

func newTestPartition(t *testing.T, sys *config.SystemConfig) *partition.Partition {
	t.Helper()
	p, err := partition.Create(partition.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, sys, partition.Config{
		SegmentSize:            segmentSize,
		MessagesRequiredToSave: 1000,
		CacheIndexes:           true,
		CacheTimeIndexes:       true,
	}, cache.NewLRU(1<<20))
	require.NoError(t, err)
	return p
}

const segmentSize = 1 << 20

func msgs(payloads ...string) []model.Message {
	out := make([]model.Message, len(payloads))
	for i, p := range payloads {
		out[i] = model.Message{Payload: []byte(p)}
	}
	return out
}

func TestAppendAssignsMonotonicOffsetsStartingAtZero(t *testing.T) {
	sys := testSystem(t)
	p := newTestPartition(t, sys)

	lo, hi, err := p.Append(sys, msgs("a", "b", "c"), partition.Wait)
	require.NoError(t, err)
	require.Equal(t, uint64(0), lo)
	require.Equal(t, uint64(2), hi)
	require.Equal(t, int64(2), p.CurrentOffset())

	lo2, hi2, err := p.Append(sys, msgs("d"), partition.Wait)
	require.NoError(t, err)
	require.Equal(t, uint64(3), lo2)
	require.Equal(t, uint64(3), hi2)
}

func TestWaitModeIsDurableImmediately(t *testing.T) {
	sys := testSystem(t)
	p := newTestPartition(t, sys)

	_, _, err := p.Append(sys, msgs("a", "b"), partition.Wait)
	require.NoError(t, err)

	got, err := p.ReadRange(0, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestStoreConsumerOffsetRejectsBeyondCurrentOffset(t *testing.T) {
	sys := testSystem(t)
	p := newTestPartition(t, sys)
	_, _, err := p.Append(sys, msgs("a"), partition.Wait)
	require.NoError(t, err)

	err = p.StoreConsumerOffset(sys, 7, 5)
	require.Error(t, err)

	require.NoError(t, p.StoreConsumerOffset(sys, 7, 0))
	require.Equal(t, uint64(0), p.ConsumerOffset(7))
}

func TestPurgeResetsPartition(t *testing.T) {
	sys := testSystem(t)
	p := newTestPartition(t, sys)
	_, _, err := p.Append(sys, msgs("a", "b"), partition.Wait)
	require.NoError(t, err)

	require.NoError(t, p.Purge(sys))
	require.Equal(t, int64(-1), p.CurrentOffset())

	msgs, err := p.ReadRange(0, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestAppendRejectsMessageLargerThanOneSegment(t *testing.T) {
	sys := testSystem(t)
	p, err := partition.Create(partition.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, sys, partition.Config{
		SegmentSize:            64,
		MessagesRequiredToSave: 1000,
	}, cache.NewLRU(1<<20))
	require.NoError(t, err)

	_, _, err = p.Append(sys, msgs(string(make([]byte, 128))), partition.Wait)
	require.Error(t, err)
	require.Equal(t, flowerr.KindResourceLimit, flowerr.KindOf(err))
	require.Equal(t, int64(-1), p.CurrentOffset(), "a rejected oversized message must not advance the partition")
}

func TestReadRangeServesFromCacheOnSecondRead(t *testing.T) {
	sys := testSystem(t)
	p := newTestPartition(t, sys)
	_, _, err := p.Append(sys, msgs("a", "b"), partition.Wait)
	require.NoError(t, err)

	first, err := p.ReadRange(0, 1)
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := p.ReadRange(0, 1)
	require.NoError(t, err)
	require.Len(t, second, 2)
}

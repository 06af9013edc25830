package topic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
	"github.com/ridgeline/flowvault/internal/topic"
)

func testSystem(t *testing.T) *config.SystemConfig {
	t.Helper()
	return &config.SystemConfig{Path: t.TempDir()}
}

func newTestTopic(t *testing.T, sys *config.SystemConfig, policy topic.PartitionerPolicy, partitions uint32) *topic.Topic {
	t.Helper()
	tp, err := topic.Create(topic.Keys{StreamID: 1, TopicID: 1}, sys, topic.Config{
		Name: "orders",
		Settings: topic.Settings{
			Segment: config.SegmentConfig{
				Size:             1 << 20,
				CacheIndexes:     true,
				CacheTimeIndexes: true,
			},
			Partition: config.PartitionConfig{
				MessagesRequiredToSave: 1,
			},
			PartitionerPolicy: policy,
		},
		InitialPartitions: partitions,
		Cache:             cache.NewLRU(1 << 20),
	})
	require.NoError(t, err)
	return tp
}

func msgs(payloads ...string) []model.Message {
	out := make([]model.Message, len(payloads))
	for i, p := range payloads {
		out[i] = model.Message{Payload: []byte(p)}
	}
	return out
}

func TestCreateBuildsRequestedPartitionCount(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 3)
	require.Equal(t, uint32(3), tp.PartitionCount())
	require.Equal(t, []uint32{1, 2, 3}, tp.PartitionIDs())
}

func TestPublishBalancedRoundRobinsAcrossPartitions(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 3)

	seen := map[uint32]int{}
	for i := 0; i < 9; i++ {
		pid, _, _, err := tp.Publish(msgs("m"), 0, nil, partition.Wait)
		require.NoError(t, err)
		seen[pid]++
	}
	require.Len(t, seen, 3)
	for _, count := range seen {
		require.Equal(t, 3, count)
	}
}

func TestPublishPartitionIDTargetsExplicitPartition(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.PartitionID, 3)

	pid, lo, hi, err := tp.Publish(msgs("a", "b"), 2, nil, partition.Wait)
	require.NoError(t, err)
	require.Equal(t, uint32(2), pid)
	require.Equal(t, uint64(0), lo)
	require.Equal(t, uint64(1), hi)

	_, _, _, err = tp.Publish(msgs("a"), 99, nil, partition.Wait)
	require.Error(t, err)
}

func TestPublishMessagesKeySameKeyAlwaysSamePartition(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.MessagesKey, 4)

	first, _, _, err := tp.Publish(msgs("a"), 0, []byte("order-42"), partition.Wait)
	require.NoError(t, err)
	second, _, _, err := tp.Publish(msgs("a"), 0, []byte("order-42"), partition.Wait)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCreatePartitionsAppendsAboveCurrentMax(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 2)

	require.NoError(t, tp.CreatePartitions(2))
	require.Equal(t, []uint32{1, 2, 3, 4}, tp.PartitionIDs())
}

func TestDeletePartitionsDropsHighestNumbered(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 4)

	require.NoError(t, tp.DeletePartitions(2))
	require.Equal(t, []uint32{1, 2}, tp.PartitionIDs())
}

func TestDeletePartitionsRejectsMoreThanExist(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 2)
	require.Error(t, tp.DeletePartitions(5))
}

func testOpenConfig() topic.Config {
	return topic.Config{
		Name: "orders",
		Settings: topic.Settings{
			Segment:   config.SegmentConfig{Size: 1 << 20},
			Partition: config.PartitionConfig{MessagesRequiredToSave: 1},
		},
		InitialPartitions: 1,
		Cache:             cache.NewLRU(1 << 20),
	}
}

func TestOpenFailsWhenStateRecordHasNoPartitionsOnDisk(t *testing.T) {
	sys := testSystem(t)
	_, err := topic.Open(topic.Keys{StreamID: 1, TopicID: 1}, sys, testOpenConfig(), true)
	require.Error(t, err)
	require.Equal(t, flowerr.KindCorruption, flowerr.KindOf(err))
}

func TestOpenSynthesizesPartitionsForOrphanDirectoryNotRequiringExisting(t *testing.T) {
	sys := testSystem(t)
	tp, err := topic.Open(topic.Keys{StreamID: 1, TopicID: 1}, sys, testOpenConfig(), false)
	require.NoError(t, err)
	require.Equal(t, uint32(1), tp.PartitionCount())
}

func TestOpenRecoversExistingPartitionsRegardlessOfRequireExisting(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.Balanced, 2)
	_, _, _, err := tp.Publish(msgs("a"), 1, nil, partition.Wait)
	require.NoError(t, err)

	reopened, err := topic.Open(topic.Keys{StreamID: 1, TopicID: 1}, sys, testOpenConfig(), true)
	require.NoError(t, err)
	require.Equal(t, uint32(2), reopened.PartitionCount())
}

func TestPurgeEmptiesPartitionsButKeepsThem(t *testing.T) {
	sys := testSystem(t)
	tp := newTestTopic(t, sys, topic.PartitionID, 1)

	_, _, _, err := tp.Publish(msgs("a", "b"), 1, nil, partition.Wait)
	require.NoError(t, err)

	require.NoError(t, tp.Purge())
	require.Equal(t, uint32(1), tp.PartitionCount())

	p, ok := tp.Partition(1)
	require.True(t, ok)
	require.Equal(t, int64(-1), p.CurrentOffset())
}

package group_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/group"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
	"github.com/ridgeline/flowvault/internal/topic"
)

func testSystem(t *testing.T) *config.SystemConfig {
	t.Helper()
	return &config.SystemConfig{Path: t.TempDir()}
}

func testTopic(t *testing.T, sys *config.SystemConfig, partitions uint32) *topic.Topic {
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
			PartitionerPolicy: topic.PartitionID,
		},
		InitialPartitions: partitions,
		Cache:             cache.NewLRU(1 << 20),
	})
	require.NoError(t, err)
	return tp
}

func TestJoinRejectsDuplicateSession(t *testing.T) {
	tp := testTopic(t, testSystem(t), 3)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Join(1))
	require.Error(t, c.Join(1))
}

func TestLeaveOfUnknownSessionIsNoop(t *testing.T) {
	tp := testTopic(t, testSystem(t), 3)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Leave(99))
}

func TestAssignedPartitionsEvenSplitTwoMembersThreePartitions(t *testing.T) {
	tp := testTopic(t, testSystem(t), 3)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Join(10)) // rank 0
	require.NoError(t, c.Join(20)) // rank 1

	a, err := c.AssignedPartitions(10)
	require.NoError(t, err)
	b, err := c.AssignedPartitions(20)
	require.NoError(t, err)

	require.Equal(t, []uint32{1, 3}, a)
	require.Equal(t, []uint32{2}, b)
}

func TestAssignedPartitionsTailMembersGetNoneWhenMoreMembersThanPartitions(t *testing.T) {
	tp := testTopic(t, testSystem(t), 1)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Join(10))
	require.NoError(t, c.Join(20))

	a, err := c.AssignedPartitions(10)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, a)

	b, err := c.AssignedPartitions(20)
	require.NoError(t, err)
	require.Empty(t, b)

	_, err = c.AssignedPartition(20)
	require.Error(t, err)
}

func TestPollAutoCommitAdvancesGroupOffset(t *testing.T) {
	sys := testSystem(t)
	tp := testTopic(t, sys, 1)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Join(10))

	_, _, _, err := tp.Publish(msgsFor("a", "b", "c"), 1, nil, partition.Wait)
	require.NoError(t, err)

	pid, messages, err := c.Poll(sys, 10, 2, true)
	require.NoError(t, err)
	require.Equal(t, uint32(1), pid)
	require.Len(t, messages, 2)

	p, ok := tp.Partition(1)
	require.True(t, ok)
	require.Equal(t, uint64(2), p.GroupOffset(1))
}

func TestPollWithoutAutoCommitDoesNotAdvanceUntilCommit(t *testing.T) {
	sys := testSystem(t)
	tp := testTopic(t, sys, 1)
	c := group.New(1, "g", tp)
	require.NoError(t, c.Join(10))

	_, _, _, err := tp.Publish(msgsFor("a", "b"), 1, nil, partition.Wait)
	require.NoError(t, err)

	_, messages, err := c.Poll(sys, 10, 5, false)
	require.NoError(t, err)
	require.Len(t, messages, 2)

	p, ok := tp.Partition(1)
	require.True(t, ok)
	require.Equal(t, uint64(0), p.GroupOffset(1))

	require.NoError(t, c.Commit(sys, 1, messages[len(messages)-1].Offset))
	require.Equal(t, uint64(2), p.GroupOffset(1))
}

func msgsFor(payloads ...string) []model.Message {
	out := make([]model.Message, len(payloads))
	for i, p := range payloads {
		out[i] = model.Message{Payload: []byte(p)}
	}
	return out
}

package stream_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/identifier"
	"github.com/ridgeline/flowvault/internal/stream"
	"github.com/ridgeline/flowvault/internal/topic"
)

func testDeps() stream.Deps {
	return stream.Deps{Cache: cache.NewLRU(1 << 20)}
}

func testSettings() topic.Settings {
	return topic.Settings{
		Segment: config.SegmentConfig{
			Size:             1 << 20,
			CacheIndexes:     true,
			CacheTimeIndexes: true,
		},
		Partition: config.PartitionConfig{
			MessagesRequiredToSave: 1,
		},
		PartitionerPolicy: topic.Balanced,
	}
}

func TestCreateTopicRegistersNameAndID(t *testing.T) {
	sys := &config.SystemConfig{Path: t.TempDir()}
	s, err := stream.Create(sys, 1, "sales")
	require.NoError(t, err)

	tp, err := s.CreateTopic(testDeps(), "orders", testSettings(), 3)
	require.NoError(t, err)
	require.Equal(t, uint32(1), tp.Keys.TopicID)

	byName, err := s.Topic(mustName(t, "orders"))
	require.NoError(t, err)
	require.Same(t, tp, byName)

	byID, err := s.Topic(identifier.Numeric(1))
	require.NoError(t, err)
	require.Same(t, tp, byID)
}

func TestCreateTopicRejectsDuplicateName(t *testing.T) {
	sys := &config.SystemConfig{Path: t.TempDir()}
	s, err := stream.Create(sys, 1, "sales")
	require.NoError(t, err)

	_, err = s.CreateTopic(testDeps(), "orders", testSettings(), 1)
	require.NoError(t, err)
	_, err = s.CreateTopic(testDeps(), "orders", testSettings(), 1)
	require.Error(t, err)
}

func TestDeleteTopicRemovesMappings(t *testing.T) {
	sys := &config.SystemConfig{Path: t.TempDir()}
	s, err := stream.Create(sys, 1, "sales")
	require.NoError(t, err)

	_, err = s.CreateTopic(testDeps(), "orders", testSettings(), 1)
	require.NoError(t, err)

	require.NoError(t, s.DeleteTopic(mustName(t, "orders")))
	_, err = s.Topic(mustName(t, "orders"))
	require.Error(t, err)
}

func mustName(t *testing.T, name string) identifier.Identifier {
	t.Helper()
	id, err := identifier.Name(name)
	require.NoError(t, err)
	return id
}

package segment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/segment"
)

func newTestSegment(t *testing.T, startOffset uint64) *segment.Segment {
	t.Helper()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "00000000000000000000")
	s, err := segment.Create(segment.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, startOffset,
		prefix+".log", prefix+".index", prefix+".timeindex",
		segment.Options{CacheIndexes: true, CacheTimeIndexes: true, EnforceFsync: false})
	require.NoError(t, err)
	return s
}

func msgAt(offset uint64, ts int64, payload string) model.Message {
	p := []byte(payload)
	return model.Message{
		Offset:    offset,
		State:     model.StateAvailable,
		Timestamp: ts,
		Checksum:  model.ChecksumPayload(p),
		Payload:   p,
	}
}

func TestSegmentAppendFlushReadRange(t *testing.T) {
	s := newTestSegment(t, 0)

	require.NoError(t, s.Append([]model.Message{msgAt(0, 100, "a"), msgAt(1, 101, "b")}))
	n, err := s.Flush(segment.MaxSizeBytes)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.Append([]model.Message{msgAt(2, 102, "c")}))
	_, err = s.Flush(segment.MaxSizeBytes)
	require.NoError(t, err)

	msgs, err := s.ReadRange(0, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, uint64(0), msgs[0].Offset)
	require.Equal(t, uint64(2), msgs[2].Offset)
}

func TestSegmentFlushEmptyAccumulatorIsNoop(t *testing.T) {
	s := newTestSegment(t, 0)
	n, err := s.Flush(segment.MaxSizeBytes)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestSegmentClosesWhenFull(t *testing.T) {
	s := newTestSegment(t, 0)
	require.NoError(t, s.Append([]model.Message{msgAt(0, 1, "payload")}))
	_, err := s.Flush(1) // any non-zero size triggers close
	require.NoError(t, err)
	require.True(t, s.IsClosed())

	err = s.Append([]model.Message{msgAt(1, 2, "x")})
	require.Error(t, err)
}

func TestSegmentReadByTimestamp(t *testing.T) {
	s := newTestSegment(t, 0)
	require.NoError(t, s.Append([]model.Message{msgAt(0, 100, "a")}))
	_, err := s.Flush(segment.MaxSizeBytes)
	require.NoError(t, err)
	require.NoError(t, s.Append([]model.Message{msgAt(1, 200, "b")}))
	_, err = s.Flush(segment.MaxSizeBytes)
	require.NoError(t, err)

	msg, err := s.ReadByTimestamp(150)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, uint64(1), msg.Offset)
}

func TestSegmentLoadRecoversFromCrashBetweenLogAndIndexWrite(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "00000000000000000000")

	s, err := segment.Create(segment.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, 0,
		prefix+".log", prefix+".index", prefix+".timeindex",
		segment.Options{CacheIndexes: true, CacheTimeIndexes: true})
	require.NoError(t, err)

	batch := model.NewBatch([]model.Message{msgAt(0, 1, "a"), msgAt(1, 2, "b")})
	encoded, err := batch.Encode()
	require.NoError(t, err)
	require.NoError(t, s.Shutdown())

	f, err := os.OpenFile(prefix+".log", os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write(encoded)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	loaded, records, err := segment.Load(segment.Keys{StreamID: 1, TopicID: 1, PartitionID: 1}, 0,
		prefix+".log", prefix+".index", prefix+".timeindex",
		segment.Options{CacheIndexes: true, CacheTimeIndexes: true}, true)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, uint64(1), loaded.EndOffset)
}

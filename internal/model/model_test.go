package model_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/model"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := model.Message{
		Offset:    42,
		State:     model.StateAvailable,
		Timestamp: 1234567,
		ID:        uuid.New(),
		Payload:   []byte("hello flowvault"),
		Headers: model.Headers{
			"trace-id": model.StringHeader("abc-123"),
			"retries":  model.Int32Header(3),
		},
	}
	msg.Checksum = model.ChecksumPayload(msg.Payload)

	encoded, err := msg.Encode()
	require.NoError(t, err)

	decoded, consumed, err := model.DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), consumed)
	require.Equal(t, msg.Offset, decoded.Offset)
	require.Equal(t, msg.State, decoded.State)
	require.Equal(t, msg.Timestamp, decoded.Timestamp)
	require.Equal(t, msg.ID, decoded.ID)
	require.Equal(t, msg.Checksum, decoded.Checksum)
	require.Equal(t, msg.Payload, decoded.Payload)
	require.True(t, decoded.VerifyChecksum())

	traceID, ok := decoded.Headers["trace-id"].AsString()
	require.True(t, ok)
	require.Equal(t, "abc-123", traceID)

	retries, ok := decoded.Headers["retries"].AsInt64()
	require.True(t, ok)
	require.Equal(t, int64(3), retries)
}

func TestBatchRoundTrip(t *testing.T) {
	messages := []model.Message{
		{Offset: 10, Timestamp: 100, State: model.StateAvailable, Payload: []byte("a")},
		{Offset: 11, Timestamp: 110, State: model.StateAvailable, Payload: []byte("bb")},
		{Offset: 12, Timestamp: 120, State: model.StateAvailable, Payload: []byte("ccc")},
	}
	for i := range messages {
		messages[i].ID = uuid.New()
		messages[i].Checksum = model.ChecksumPayload(messages[i].Payload)
	}

	batch := model.NewBatch(messages)
	encoded, err := batch.Encode()
	require.NoError(t, err)

	decoded, consumed, err := model.DecodeBatch(encoded)
	require.NoError(t, err)
	require.Equal(t, len(encoded), consumed)
	require.Equal(t, batch.BaseOffset, decoded.BaseOffset)
	require.Equal(t, batch.LastOffsetDelta, decoded.LastOffsetDelta)
	require.Equal(t, batch.MaxTimestamp, decoded.MaxTimestamp)
	require.Len(t, decoded.Messages, len(messages))
	for i := range messages {
		require.Equal(t, messages[i].Offset, decoded.Messages[i].Offset)
		require.Equal(t, messages[i].Payload, decoded.Messages[i].Payload)
	}
}

func TestDecodeMessageTruncated(t *testing.T) {
	_, _, err := model.DecodeMessage([]byte{1, 2})
	require.Error(t, err)
}

func TestPayloadTooLarge(t *testing.T) {
	msg := model.Message{Payload: make([]byte, model.MaxPayloadLength+1)}
	_, err := msg.Encode()
	require.Error(t, err)
}

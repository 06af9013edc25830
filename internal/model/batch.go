package model

import (
	"encoding/binary"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// BatchHeaderSize is the fixed-size prefix of a batch frame:
// base_offset(8) | length(4) | last_offset_delta(4) | max_timestamp(8).
const BatchHeaderSize = 8 + 4 + 4 + 8

// Batch is the storage unit written to a segment's log file: a header plus
// the concatenated framed messages that make up the batch body.
type Batch struct {
	BaseOffset      uint64
	LastOffsetDelta uint32
	MaxTimestamp    int64
	Messages        []Message
}

// NewBatch builds a batch from already offset/timestamp-assigned messages.
func NewBatch(messages []Message) *Batch {
	if len(messages) == 0 {
		return &Batch{Messages: messages}
	}
	base := messages[0].Offset
	last := messages[len(messages)-1]
	return &Batch{
		BaseOffset:      base,
		LastOffsetDelta: uint32(last.Offset - base),
		MaxTimestamp:    last.Timestamp,
		Messages:        messages,
	}
}

// Encode serializes the full batch frame (header + body) for a single
// vectored write to the segment log.
func (b *Batch) Encode() ([]byte, error) {
	const op = "model.Batch.Encode"
	body := make([]byte, 0, 64*len(b.Messages))
	for i := range b.Messages {
		frame, err := b.Messages[i].Encode()
		if err != nil {
			return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
		}
		body = append(body, frame...)
	}

	buf := make([]byte, BatchHeaderSize+len(body))
	pos := 0
	binary.LittleEndian.PutUint64(buf[pos:], b.BaseOffset)
	pos += 8
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(body)))
	pos += 4
	binary.LittleEndian.PutUint32(buf[pos:], b.LastOffsetDelta)
	pos += 4
	binary.LittleEndian.PutUint64(buf[pos:], uint64(b.MaxTimestamp))
	pos += 8
	copy(buf[pos:], body)

	return buf, nil
}

// DecodeBatch parses one batch frame starting at data[0], returning the
// batch and the total number of bytes consumed. Callers that need the
// batch_length field without decoding the messages (segment recovery, to
// detect a truncated trailing batch) use BatchLength.
func DecodeBatch(data []byte) (*Batch, int, error) {
	const op = "model.DecodeBatch"
	if len(data) < BatchHeaderSize {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated batch header")
	}
	pos := 0
	baseOffset := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	length := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	lastOffsetDelta := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	maxTimestamp := int64(binary.LittleEndian.Uint64(data[pos:]))
	pos += 8

	total := BatchHeaderSize + length
	if len(data) < total {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated batch body")
	}
	body := data[BatchHeaderSize:total]

	var messages []Message
	offset := 0
	for offset < len(body) {
		msg, consumed, err := DecodeMessage(body[offset:])
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, *msg)
		offset += consumed
	}

	batch := &Batch{
		BaseOffset:      baseOffset,
		LastOffsetDelta: lastOffsetDelta,
		MaxTimestamp:    maxTimestamp,
		Messages:        messages,
	}
	return batch, total, nil
}

// BatchLength returns the batch_length field (body length, excluding the
// fixed header) that DecodeBatch would read from data, without decoding the
// messages. Used by segment recovery to validate a trailing batch fits
// within the remaining file bytes before attempting a full decode.
func BatchLength(data []byte) (int, bool) {
	if len(data) < BatchHeaderSize {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(data[8:12])), true
}

// Package model implements the wire/disk representation of messages and
// batches: the framing, checksum and headers encoding described in the
// segment storage format.
package model

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/google/uuid"
	"github.com/ridgeline/flowvault/internal/flowerr"
)

// State is the lifecycle state of a stored message.
type State uint8

const (
	StateAvailable State = 1
	StateDeleted   State = 2
	StatePoisoned  State = 3
)

const (
	MinPayloadLength = 1
	MaxPayloadLength = 1<<24 - 1
)

// Message is a single stored message: the in-memory mirror of the on-disk
// message frame.
type Message struct {
	Offset    uint64
	State     State
	Timestamp int64 // microseconds since epoch, assigned at append
	ID        uuid.UUID
	Checksum  uint32
	Payload   []byte
	Headers   Headers
}

// ChecksumPayload computes the CRC32 (IEEE) checksum over the plaintext
// payload. Per the encryption design note, the checksum always covers
// plaintext, computed before any encryption is applied.
func ChecksumPayload(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// VerifyChecksum reports whether m.Checksum matches the payload's CRC32.
func (m *Message) VerifyChecksum() bool {
	return m.Checksum == ChecksumPayload(m.Payload)
}

// Encode serializes the message frame:
// length:u32 | offset:u64 | state:u8 | timestamp:u64 | id:u128 | checksum:u32
// | headers_length:u32 | headers_bytes | payload_length:u32 | payload_bytes
// length covers every field after itself.
func (m *Message) Encode() ([]byte, error) {
	const op = "model.Message.Encode"
	if len(m.Payload) > MaxPayloadLength {
		return nil, flowerr.Newf(flowerr.KindInvalidInput, op, "payload length %d exceeds max %d", len(m.Payload), MaxPayloadLength)
	}
	headerBytes, err := m.Headers.Encode()
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}

	rest := 8 + 1 + 8 + 16 + 4 + 4 + len(headerBytes) + 4 + len(m.Payload)
	buf := make([]byte, 4+rest)
	pos := 0
	binary.LittleEndian.PutUint32(buf[pos:], uint32(rest))
	pos += 4
	binary.LittleEndian.PutUint64(buf[pos:], m.Offset)
	pos += 8
	buf[pos] = byte(m.State)
	pos++
	binary.LittleEndian.PutUint64(buf[pos:], uint64(m.Timestamp))
	pos += 8
	copy(buf[pos:], m.ID[:])
	pos += 16
	binary.LittleEndian.PutUint32(buf[pos:], m.Checksum)
	pos += 4
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(headerBytes)))
	pos += 4
	copy(buf[pos:], headerBytes)
	pos += len(headerBytes)
	binary.LittleEndian.PutUint32(buf[pos:], uint32(len(m.Payload)))
	pos += 4
	copy(buf[pos:], m.Payload)

	return buf, nil
}

// DecodeMessage parses one message frame starting at data[0], returning the
// message and the total number of bytes consumed (including the length
// prefix).
func DecodeMessage(data []byte) (*Message, int, error) {
	const op = "model.DecodeMessage"
	if len(data) < 4 {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated message length")
	}
	rest := int(binary.LittleEndian.Uint32(data))
	total := 4 + rest
	if len(data) < total {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated message body")
	}
	body := data[4:total]
	pos := 0

	if len(body) < 8+1+8+16+4+4 {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated message fixed fields")
	}
	msg := &Message{}
	msg.Offset = binary.LittleEndian.Uint64(body[pos:])
	pos += 8
	msg.State = State(body[pos])
	pos++
	msg.Timestamp = int64(binary.LittleEndian.Uint64(body[pos:]))
	pos += 8
	copy(msg.ID[:], body[pos:pos+16])
	pos += 16
	msg.Checksum = binary.LittleEndian.Uint32(body[pos:])
	pos += 4

	headersLen := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	if pos+headersLen > len(body) {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated headers")
	}
	headers, consumed, err := DecodeHeaders(body[pos : pos+headersLen])
	if err != nil {
		return nil, 0, err
	}
	if consumed != headersLen {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "headers length mismatch")
	}
	msg.Headers = headers
	pos += headersLen

	if pos+4 > len(body) {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated payload length")
	}
	payloadLen := int(binary.LittleEndian.Uint32(body[pos:]))
	pos += 4
	if pos+payloadLen > len(body) {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated payload")
	}
	msg.Payload = make([]byte, payloadLen)
	copy(msg.Payload, body[pos:pos+payloadLen])

	return msg, total, nil
}

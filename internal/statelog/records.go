// Package statelog implements the write-ahead control-plane journal:
// append-only length-prefixed records recording every create/update/delete
// of a user, stream, topic, partition set, token, or permission set.
// Message appends are never logged here. Grounded on
// original_source/integration/tests/state/system.rs's apply(user_id,
// EntryCommand) shape and original_source/server/src/configs/system.rs for
// the on-disk state/ layout.
package statelog

import (
	"encoding/binary"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Code identifies which control-plane command a record encodes. The
// payload layout for each code is owned by internal/system, which issues
// every record and registers its replay handler; statelog only frames and
// orders the bytes.
type Code uint32

const (
	CodeCreateUser Code = iota + 1
	CodeUpdateUser
	CodeDeleteUser
	CodeChangePassword
	CodeUpdatePermissions
	CodeCreatePersonalAccessToken
	CodeDeletePersonalAccessToken
	CodeCreateStream
	CodeUpdateStream
	CodeDeleteStream
	CodeCreateTopic
	CodeUpdateTopic
	CodeDeleteTopic
	CodeCreatePartitions
	CodeDeletePartitions
	CodeCreateConsumerGroup
	CodeDeleteConsumerGroup
)

// recordHeaderSize is the fixed prefix before the variable-length payload:
// index:u64 | timestamp:u64 | code:u32 | data_length:u32.
const recordHeaderSize = 8 + 8 + 4 + 4

// Record is one decoded state-log entry.
type Record struct {
	Index     uint64
	Timestamp int64
	Code      Code
	Data      []byte
}

// Encode writes the on-disk frame: index:u64 | timestamp:u64 | code:u32 |
// data_length:u32 | data_bytes, all little-endian.
func (r Record) Encode() []byte {
	buf := make([]byte, recordHeaderSize+len(r.Data))
	binary.LittleEndian.PutUint64(buf[0:8], r.Index)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(r.Code))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(r.Data)))
	copy(buf[recordHeaderSize:], r.Data)
	return buf
}

// DecodeRecord parses one record from the front of data, returning the
// record and the number of bytes consumed. Returns KindCorruption if data
// is shorter than the header or the declared payload.
func DecodeRecord(data []byte) (Record, int, error) {
	const op = "statelog.DecodeRecord"
	if len(data) < recordHeaderSize {
		return Record{}, 0, flowerr.New(flowerr.KindCorruption, op, "truncated record header")
	}
	index := binary.LittleEndian.Uint64(data[0:8])
	timestamp := int64(binary.LittleEndian.Uint64(data[8:16]))
	code := Code(binary.LittleEndian.Uint32(data[16:20]))
	dataLength := binary.LittleEndian.Uint32(data[20:24])

	total := recordHeaderSize + int(dataLength)
	if len(data) < total {
		return Record{}, 0, flowerr.New(flowerr.KindCorruption, op, "truncated record payload")
	}
	payload := make([]byte, dataLength)
	copy(payload, data[recordHeaderSize:total])
	return Record{Index: index, Timestamp: timestamp, Code: code, Data: payload}, total, nil
}

// RecordLength reports the byte length of the record starting at data, and
// whether data contains that many bytes yet — used by recovery to detect a
// trailing partially-written record without attempting to decode it.
func RecordLength(data []byte) (int, bool) {
	if len(data) < recordHeaderSize {
		return 0, false
	}
	dataLength := binary.LittleEndian.Uint32(data[20:24])
	total := recordHeaderSize + int(dataLength)
	return total, len(data) >= total
}

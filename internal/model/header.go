package model

import (
	"encoding/binary"
	"math"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// HeaderKind enumerates the typed values a message header can carry.
type HeaderKind uint8

const (
	HeaderRaw     HeaderKind = 1
	HeaderString  HeaderKind = 2
	HeaderBool    HeaderKind = 3
	HeaderInt8    HeaderKind = 4
	HeaderInt16   HeaderKind = 5
	HeaderInt32   HeaderKind = 6
	HeaderInt64   HeaderKind = 7
	HeaderInt128  HeaderKind = 8
	HeaderUint8   HeaderKind = 9
	HeaderUint16  HeaderKind = 10
	HeaderUint32  HeaderKind = 11
	HeaderUint64  HeaderKind = 12
	HeaderUint128 HeaderKind = 13
	HeaderFloat32 HeaderKind = 14
	HeaderFloat64 HeaderKind = 15
)

// HeaderValue is a typed header value. Value holds the little-endian fixed
// width encoding for numeric kinds, the raw bytes for HeaderRaw, and the
// UTF-8 bytes for HeaderString.
type HeaderValue struct {
	Kind  HeaderKind
	Value []byte
}

func RawHeader(v []byte) HeaderValue    { return HeaderValue{Kind: HeaderRaw, Value: v} }
func StringHeader(v string) HeaderValue { return HeaderValue{Kind: HeaderString, Value: []byte(v)} }

func BoolHeader(v bool) HeaderValue {
	b := byte(0)
	if v {
		b = 1
	}
	return HeaderValue{Kind: HeaderBool, Value: []byte{b}}
}

func Int32Header(v int32) HeaderValue {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(v))
	return HeaderValue{Kind: HeaderInt32, Value: buf}
}

func Int64Header(v int64) HeaderValue {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))
	return HeaderValue{Kind: HeaderInt64, Value: buf}
}

func Uint64Header(v uint64) HeaderValue {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return HeaderValue{Kind: HeaderUint64, Value: buf}
}

func Float64Header(v float64) HeaderValue {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return HeaderValue{Kind: HeaderFloat64, Value: buf}
}

// AsString decodes a HeaderString value.
func (h HeaderValue) AsString() (string, bool) {
	if h.Kind != HeaderString {
		return "", false
	}
	return string(h.Value), true
}

// AsBool decodes a HeaderBool value.
func (h HeaderValue) AsBool() (bool, bool) {
	if h.Kind != HeaderBool || len(h.Value) != 1 {
		return false, false
	}
	return h.Value[0] != 0, true
}

// AsInt64 decodes any signed integer kind up to 64 bits.
func (h HeaderValue) AsInt64() (int64, bool) {
	switch h.Kind {
	case HeaderInt8:
		if len(h.Value) != 1 {
			return 0, false
		}
		return int64(int8(h.Value[0])), true
	case HeaderInt16:
		if len(h.Value) != 2 {
			return 0, false
		}
		return int64(int16(binary.LittleEndian.Uint16(h.Value))), true
	case HeaderInt32:
		if len(h.Value) != 4 {
			return 0, false
		}
		return int64(int32(binary.LittleEndian.Uint32(h.Value))), true
	case HeaderInt64:
		if len(h.Value) != 8 {
			return 0, false
		}
		return int64(binary.LittleEndian.Uint64(h.Value)), true
	default:
		return 0, false
	}
}

// Headers is the optional key→typed-value map attached to a message.
type Headers map[string]HeaderValue

const maxHeaderKeyLength = 255

// Encode serializes headers as:
// count:u32 | repeated { key_length:u8 | key_bytes | kind_code:u8 | value_length:u32 | value_bytes }
func (h Headers) Encode() ([]byte, error) {
	const op = "model.Headers.Encode"
	if len(h) == 0 {
		return []byte{0, 0, 0, 0}, nil
	}
	// Deterministic order for byte-identical round trips in tests.
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sortStrings(keys)

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(h)))
	for _, key := range keys {
		if len(key) > maxHeaderKeyLength {
			return nil, flowerr.Newf(flowerr.KindInvalidInput, op, "header key %q exceeds %d bytes", key, maxHeaderKeyLength)
		}
		val := h[key]
		entry := make([]byte, 1+len(key)+1+4+len(val.Value))
		pos := 0
		entry[pos] = byte(len(key))
		pos++
		copy(entry[pos:], key)
		pos += len(key)
		entry[pos] = byte(val.Kind)
		pos++
		binary.LittleEndian.PutUint32(entry[pos:], uint32(len(val.Value)))
		pos += 4
		copy(entry[pos:], val.Value)
		buf = append(buf, entry...)
	}
	return buf, nil
}

// DecodeHeaders parses the wire form produced by Encode, returning the
// headers and the number of bytes consumed.
func DecodeHeaders(data []byte) (Headers, int, error) {
	const op = "model.DecodeHeaders"
	if len(data) < 4 {
		return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated header count")
	}
	count := binary.LittleEndian.Uint32(data)
	pos := 4
	if count == 0 {
		return nil, pos, nil
	}
	headers := make(Headers, count)
	for i := uint32(0); i < count; i++ {
		if pos+1 > len(data) {
			return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated key length")
		}
		keyLen := int(data[pos])
		pos++
		if pos+keyLen > len(data) {
			return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated key bytes")
		}
		key := string(data[pos : pos+keyLen])
		pos += keyLen
		if pos+1 > len(data) {
			return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated kind code")
		}
		kind := HeaderKind(data[pos])
		pos++
		if pos+4 > len(data) {
			return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated value length")
		}
		valLen := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if pos+valLen > len(data) {
			return nil, 0, flowerr.New(flowerr.KindCorruption, op, "truncated value bytes")
		}
		value := make([]byte, valLen)
		copy(value, data[pos:pos+valLen])
		pos += valLen
		headers[key] = HeaderValue{Kind: kind, Value: value}
	}
	return headers, pos, nil
}

// sortStrings avoids importing sort in two places; trivial insertion sort is
// fine here since header counts per message are small.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

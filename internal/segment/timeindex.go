package segment

import (
	"encoding/binary"
	"os"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// timeIndexEntrySize is one (offset_delta:u32, timestamp:u64) pair.
const timeIndexEntrySize = 4 + 8

// TimeIndexEntry is one sparse time-index record.
type TimeIndexEntry struct {
	OffsetDelta uint32
	Timestamp   int64
}

// TimeIndex is the in-memory, append-only mirror of a segment's .timeindex
// file, binary-searchable by timestamp.
type TimeIndex struct {
	entries []TimeIndexEntry
}

func NewTimeIndex() *TimeIndex { return &TimeIndex{} }

func (tx *TimeIndex) Append(offsetDelta uint32, timestamp int64) {
	tx.entries = append(tx.entries, TimeIndexEntry{OffsetDelta: offsetDelta, Timestamp: timestamp})
}

func (tx *TimeIndex) Len() int { return len(tx.entries) }

func (tx *TimeIndex) Last() (TimeIndexEntry, bool) {
	if len(tx.entries) == 0 {
		return TimeIndexEntry{}, false
	}
	return tx.entries[len(tx.entries)-1], true
}

// Lookup returns the greatest entry with Timestamp <= t, for the read-by-
// timestamp path (§4.1). Returns false if t precedes every known entry.
func (tx *TimeIndex) Lookup(t int64) (TimeIndexEntry, bool) {
	if len(tx.entries) == 0 {
		return TimeIndexEntry{}, false
	}
	lo, hi := 0, len(tx.entries)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if tx.entries[mid].Timestamp <= t {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == -1 {
		return TimeIndexEntry{}, false
	}
	return tx.entries[best], true
}

func (tx *TimeIndex) Encode() []byte {
	buf := make([]byte, len(tx.entries)*timeIndexEntrySize)
	for i, e := range tx.entries {
		off := i * timeIndexEntrySize
		binary.LittleEndian.PutUint32(buf[off:], e.OffsetDelta)
		binary.LittleEndian.PutUint64(buf[off+4:], uint64(e.Timestamp))
	}
	return buf
}

func DecodeTimeIndex(data []byte) (*TimeIndex, error) {
	if len(data)%timeIndexEntrySize != 0 {
		return nil, flowerr.Newf(flowerr.KindCorruption, "segment.DecodeTimeIndex",
			"timeindex length %d not a multiple of %d", len(data), timeIndexEntrySize)
	}
	n := len(data) / timeIndexEntrySize
	tx := &TimeIndex{entries: make([]TimeIndexEntry, n)}
	for i := 0; i < n; i++ {
		off := i * timeIndexEntrySize
		tx.entries[i] = TimeIndexEntry{
			OffsetDelta: binary.LittleEndian.Uint32(data[off:]),
			Timestamp:   int64(binary.LittleEndian.Uint64(data[off+4:])),
		}
	}
	return tx, nil
}

// LoadTimeIndex reads a .timeindex file from disk. A missing file yields an
// empty index, since it can always be rebuilt from the log.
func LoadTimeIndex(path string) (*TimeIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewTimeIndex(), nil
		}
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "segment.LoadTimeIndex", err)
	}
	return DecodeTimeIndex(data)
}

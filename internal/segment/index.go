// Package segment implements the on-disk segment: a log file of framed
// batches plus sparse offset and time indexes, one entry per persisted
// batch. Grounded on the original source's streaming/src/segments/segment.rs
// and segment_file.rs (file layout, MAX_SIZE_BYTES, path naming) and the
// teacher's internal/drivers/local.go + locking_unix.go for buffered
// file I/O and flock-based close locking.
package segment

import (
	"encoding/binary"
	"os"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// indexEntrySize is one (offset_delta:u32, position:u32) pair.
const indexEntrySize = 4 + 4

// IndexEntry is one sparse offset-index record: the position in the log file
// of the batch whose last message has offset start_offset+OffsetDelta.
type IndexEntry struct {
	OffsetDelta uint32
	Position    uint32
}

// Index is the in-memory, append-only mirror of a segment's .index file.
// Entries are non-decreasing in both OffsetDelta and Position (§8).
type Index struct {
	entries []IndexEntry
}

// NewIndex returns an empty index.
func NewIndex() *Index { return &Index{} }

// Append adds one index entry. Callers must maintain monotonicity.
func (ix *Index) Append(offsetDelta, position uint32) {
	ix.entries = append(ix.entries, IndexEntry{OffsetDelta: offsetDelta, Position: position})
}

// Len reports how many entries are cached.
func (ix *Index) Len() int { return len(ix.entries) }

// Last returns the most recently appended entry, if any.
func (ix *Index) Last() (IndexEntry, bool) {
	if len(ix.entries) == 0 {
		return IndexEntry{}, false
	}
	return ix.entries[len(ix.entries)-1], true
}

// Lookup returns the greatest entry with OffsetDelta <= targetDelta, i.e. the
// byte position to seek the log to before a forward scan for targetDelta.
// Returns false if targetDelta is before every known entry (caller should
// seek to position 0).
func (ix *Index) Lookup(targetDelta uint32) (IndexEntry, bool) {
	if len(ix.entries) == 0 {
		return IndexEntry{}, false
	}
	lo, hi := 0, len(ix.entries)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if ix.entries[mid].OffsetDelta <= targetDelta {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == -1 {
		return IndexEntry{}, false
	}
	return ix.entries[best], true
}

// Encode serializes all entries in append order.
func (ix *Index) Encode() []byte {
	buf := make([]byte, len(ix.entries)*indexEntrySize)
	for i, e := range ix.entries {
		off := i * indexEntrySize
		binary.LittleEndian.PutUint32(buf[off:], e.OffsetDelta)
		binary.LittleEndian.PutUint32(buf[off+4:], e.Position)
	}
	return buf
}

// DecodeIndex parses a .index file's full contents.
func DecodeIndex(data []byte) (*Index, error) {
	if len(data)%indexEntrySize != 0 {
		return nil, flowerr.Newf(flowerr.KindCorruption, "segment.DecodeIndex",
			"index length %d not a multiple of %d", len(data), indexEntrySize)
	}
	n := len(data) / indexEntrySize
	ix := &Index{entries: make([]IndexEntry, n)}
	for i := 0; i < n; i++ {
		off := i * indexEntrySize
		ix.entries[i] = IndexEntry{
			OffsetDelta: binary.LittleEndian.Uint32(data[off:]),
			Position:    binary.LittleEndian.Uint32(data[off+4:]),
		}
	}
	return ix, nil
}

// LoadIndex reads a .index file from disk. A missing file yields an empty
// index, since an index can always be rebuilt from the log.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewIndex(), nil
		}
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "segment.LoadIndex", err)
	}
	return DecodeIndex(data)
}

package segment

import (
	"os"
	"sync"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
)

// MaxSizeBytes is the hard ceiling for a segment's log file, matching the
// original source's segments/segment.rs MAX_SIZE_BYTES.
const MaxSizeBytes uint64 = 1024 * 1024 * 1024

// Keys identifies the partition a segment belongs to, used only for logging
// and path reconstruction — a segment never reaches across partitions.
type Keys struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

// Segment is one contiguous, append-only offset range of a partition: a log
// file of framed batches plus sparse offset and time indexes. Exactly the
// last segment in a partition is open for append; all others are closed and
// immutable (§3, §4.1).
type Segment struct {
	Keys Keys

	StartOffset  uint64
	EndOffset    uint64 // set on each flush, final on Close
	EndTimestamp int64  // max_timestamp of the last flushed batch

	LogPath       string
	IndexPath     string
	TimeIndexPath string

	mu               sync.Mutex
	currentSizeBytes uint64
	lastIndexPos     uint32
	closed           bool

	cacheIndexes     bool
	cacheTimeIndexes bool
	index            *Index
	timeIndex        *TimeIndex

	accumulator []model.Message
	logFile     *os.File
	enforceSync bool
}

// Options configures a segment's behavior, sourced from the segment.* and
// partition.* config knobs.
type Options struct {
	CacheIndexes     bool
	CacheTimeIndexes bool
	EnforceFsync     bool

	// DecodePayload reverses the partition-level compression/encryption
	// transform so recovery's checksum check (§4.1) runs against the same
	// plaintext the checksum was computed over. Nil means the stored bytes
	// are already plaintext (no compression, no encryption).
	DecodePayload func([]byte) ([]byte, error)
}

// Create builds a brand-new open segment starting at startOffset. The log
// file is opened for append immediately; index files are created lazily on
// first flush.
func Create(keys Keys, startOffset uint64, logPath, indexPath, timeIndexPath string, opts Options) (*Segment, error) {
	const op = "segment.Create"
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	s := &Segment{
		Keys:             keys,
		StartOffset:      startOffset,
		LogPath:          logPath,
		IndexPath:        indexPath,
		TimeIndexPath:    timeIndexPath,
		cacheIndexes:     opts.CacheIndexes,
		cacheTimeIndexes: opts.CacheTimeIndexes,
		enforceSync:      opts.EnforceFsync,
		logFile:          f,
	}
	if opts.CacheIndexes {
		s.index = NewIndex()
	}
	if opts.CacheTimeIndexes {
		s.timeIndex = NewTimeIndex()
	}
	return s, nil
}

// IsFull reports whether the segment has reached its configured size.
func (s *Segment) IsFull(configuredSize uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSizeBytes >= configuredSize
}

// IsClosed reports whether the segment has been sealed.
func (s *Segment) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CurrentSizeBytes reports the segment's on-disk log size: bytes already
// flushed, not counting messages still in the accumulator.
func (s *Segment) CurrentSizeBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSizeBytes
}

// Append merges messages into the accumulator without writing to disk;
// offsets must already be assigned by the owning partition (§4.1 step 2).
// Flush is the only operation that touches the log file.
func (s *Segment) Append(messages []model.Message) error {
	const op = "segment.Segment.Append"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowerr.New(flowerr.KindSegmentClosed, op, "segment is closed")
	}
	s.accumulator = append(s.accumulator, messages...)
	return nil
}

// Flush serializes the accumulator into one batch, writes it to the log,
// appends one sparse index entry, and closes the segment if it is now full.
// Returns the number of messages flushed.
func (s *Segment) Flush(configuredSize uint64) (int, error) {
	const op = "segment.Segment.Flush"
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.accumulator) == 0 {
		return 0, nil
	}
	if s.closed {
		return 0, flowerr.New(flowerr.KindSegmentClosed, op, "segment is closed")
	}

	batch := model.NewBatch(s.accumulator)
	encoded, err := batch.Encode()
	if err != nil {
		return 0, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}

	if _, err := s.logFile.Write(encoded); err != nil {
		return 0, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	lastDelta := uint32(s.accumulator[len(s.accumulator)-1].Offset - s.StartOffset)
	pos := s.lastIndexPos
	if s.index != nil {
		s.index.Append(lastDelta, pos)
	}
	if s.timeIndex != nil {
		s.timeIndex.Append(lastDelta, batch.MaxTimestamp)
	}
	if err := s.appendIndexFiles(lastDelta, pos, batch.MaxTimestamp); err != nil {
		return 0, err
	}

	n := len(s.accumulator)
	s.currentSizeBytes += uint64(len(encoded))
	s.lastIndexPos += uint32(len(encoded))
	s.EndOffset = s.accumulator[n-1].Offset
	s.EndTimestamp = batch.MaxTimestamp
	s.accumulator = s.accumulator[:0]

	if s.enforceSync {
		if err := s.logFile.Sync(); err != nil {
			return n, flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
	}

	if s.currentSizeBytes >= configuredSize {
		if err := s.closeLocked(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// appendIndexFiles appends one on-disk record to both index files,
// regardless of whether they are also mirrored in memory.
func (s *Segment) appendIndexFiles(offsetDelta, position uint32, timestamp int64) error {
	const op = "segment.Segment.appendIndexFiles"
	ixBuf := (&Index{entries: []IndexEntry{{OffsetDelta: offsetDelta, Position: position}}}).Encode()
	if err := appendFile(s.IndexPath, ixBuf); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	txBuf := (&TimeIndex{entries: []TimeIndexEntry{{OffsetDelta: offsetDelta, Timestamp: timestamp}}}).Encode()
	if err := appendFile(s.TimeIndexPath, txBuf); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	return nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Close seals the segment: no further Append/Flush calls succeed, and the
// log/index files are fsync'd one final time.
func (s *Segment) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Segment) closeLocked() error {
	const op = "segment.Segment.Close"
	if s.closed {
		return nil
	}
	if err := s.logFile.Sync(); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	s.closed = true
	return nil
}

// Shutdown releases the segment's open file handle without sealing it —
// used during orderly process shutdown where the segment may still be
// appended to after restart.
func (s *Segment) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logFile == nil {
		return nil
	}
	return s.logFile.Close()
}

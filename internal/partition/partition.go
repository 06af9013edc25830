// Package partition implements the partition: an ordered sequence of
// segments, the append/flush accumulator, consumer and group offset
// bookkeeping, retention, and purge (§3, §4.2). Grounded on the teacher's
// internal/streaming/stream.go `partition` struct and `StreamManager`
// bookkeeping (offset assignment, retention sweep), generalized from its
// in-memory message ring to the spec's segment-backed model, and
// original_source/server/src/streaming/partitions/consumer_offsets.rs for
// the on-disk offset-file semantics.
package partition

import (
	"os"
	"sync"
	"time"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/compression"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/segment"
)

// Keys identifies the stream/topic/partition this partition belongs to.
type Keys struct {
	StreamID    uint32
	TopicID     uint32
	PartitionID uint32
}

// ConfirmMode selects how append acknowledges durability (§4.2).
type ConfirmMode int

const (
	// Wait flushes synchronously before acknowledging.
	Wait ConfirmMode = iota
	// NoWait acknowledges after in-memory accept, flushing asynchronously.
	NoWait
)

// Partition owns an ordered, contiguous, non-overlapping sequence of
// segments; exactly the last is open for append.
type Partition struct {
	Keys Keys
	Dir  string

	mu             sync.Mutex
	segments       []*segment.Segment
	currentOffset  int64 // -1 means empty
	createdAt      time.Time
	messagesToSave int
	accumulated    int
	enforceFsync   bool
	segmentSize    uint64
	segOpts        segment.Options

	cache       *cache.LRU
	consumerOff map[uint32]uint64
	groupOff    map[uint32]uint64

	codec codec

	persister *Persister
}

// SetPersister attaches the background no_wait flush worker. Must be called
// before any Append with mode NoWait.
func (p *Partition) SetPersister(pr *Persister) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persister = pr
}

// Config bundles the partition/segment knobs a Partition needs at creation.
type Config struct {
	SegmentSize            uint64
	MessagesRequiredToSave int
	EnforceFsync           bool
	CacheIndexes           bool
	CacheTimeIndexes       bool
	Compression            compression.Algorithm
	Encryptor              cryptoutil.Encryptor
}

// Create builds a brand-new, empty partition with one open segment starting
// at offset 0.
func Create(keys Keys, sys *config.SystemConfig, cfg Config, msgCache *cache.LRU) (*Partition, error) {
	const op = "partition.Create"
	dir := sys.PartitionPath(keys.StreamID, keys.TopicID, keys.PartitionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	c := newCodec(cfg.Compression, cfg.Encryptor)
	p := &Partition{
		Keys:           keys,
		Dir:            dir,
		currentOffset:  -1,
		createdAt:      time.Now(),
		messagesToSave: cfg.MessagesRequiredToSave,
		enforceFsync:   cfg.EnforceFsync,
		segmentSize:    cfg.SegmentSize,
		segOpts: segment.Options{
			CacheIndexes:     cfg.CacheIndexes,
			CacheTimeIndexes: cfg.CacheTimeIndexes,
			EnforceFsync:     cfg.EnforceFsync,
			DecodePayload:    c.Decode,
		},
		cache:       msgCache,
		consumerOff: make(map[uint32]uint64),
		groupOff:    make(map[uint32]uint64),
		codec:       c,
	}

	seg, err := p.createSegment(sys, 0)
	if err != nil {
		return nil, err
	}
	p.segments = append(p.segments, seg)
	return p, nil
}

func (p *Partition) createSegment(sys *config.SystemConfig, startOffset uint64) (*segment.Segment, error) {
	logPath := sys.SegmentLogPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID, startOffset)
	indexPath := sys.SegmentIndexPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID, startOffset)
	timeIndexPath := sys.SegmentTimeIndexPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID, startOffset)
	return segment.Create(segment.Keys{StreamID: p.Keys.StreamID, TopicID: p.Keys.TopicID, PartitionID: p.Keys.PartitionID},
		startOffset, logPath, indexPath, timeIndexPath, p.segOpts)
}

// CurrentOffset returns the last assigned offset, or -1 if empty.
func (p *Partition) CurrentOffset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentOffset
}

// Append assigns offsets/timestamps to messages, appends them to the open
// segment's accumulator, rolling to a new segment first if the open segment
// is already full (its flushed bytes have reached the segment size), and
// flushes according to mode. Returns the assigned
// [lo, hi] offset range.
func (p *Partition) Append(sys *config.SystemConfig, messages []model.Message, mode ConfirmMode) (lo, hi uint64, err error) {
	const op = "partition.Partition.Append"
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(messages) == 0 {
		return 0, 0, flowerr.New(flowerr.KindInvalidInput, op, "empty message batch")
	}

	lo = uint64(p.currentOffset + 1)
	next := lo
	now := time.Now().UnixMicro()
	for i := range messages {
		messages[i].Offset = next
		messages[i].Timestamp = now
		messages[i].Checksum = model.ChecksumPayload(messages[i].Payload)
		if messages[i].State == 0 {
			messages[i].State = model.StateAvailable
		}
		next++
	}
	hi = next - 1

	stored := make([]model.Message, len(messages))
	for i := range messages {
		stored[i] = messages[i]
		encoded, err := p.codec.Encode(messages[i].Payload)
		if err != nil {
			return 0, 0, err
		}
		stored[i].Payload = encoded
	}

	if p.segmentSize > 0 {
		for i := range stored {
			frame, err := stored[i].Encode()
			if err != nil {
				return 0, 0, err
			}
			if uint64(len(frame)) > p.segmentSize {
				return 0, 0, flowerr.Newf(flowerr.KindResourceLimit, op,
					"message frame of %d bytes exceeds segment size %d, it can never fit in one segment", len(frame), p.segmentSize)
			}
		}
	}

	open := p.segments[len(p.segments)-1]
	if open.IsFull(p.segmentSize) {
		if err := p.rollSegment(sys); err != nil {
			return 0, 0, err
		}
		open = p.segments[len(p.segments)-1]
	}

	if err := open.Append(stored); err != nil {
		return 0, 0, err
	}
	p.currentOffset = int64(hi)
	p.accumulated += len(messages)

	for i := range messages {
		p.cache.Put(p.Keys.PartitionID, messages[i])
	}

	switch mode {
	case Wait:
		if _, err := p.flushLocked(sys); err != nil {
			return 0, 0, err
		}
	case NoWait:
		if p.accumulated >= p.messagesToSave && p.persister != nil {
			p.persister.Enqueue(sys)
		}
	}

	return lo, hi, nil
}

// Flush forces the open segment's accumulator to disk regardless of the
// messages_required_to_save threshold — used by the periodic flusher and
// the explicit flush_unsaved_buffer command.
func (p *Partition) Flush(sys *config.SystemConfig) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(sys)
}

func (p *Partition) flushLocked(sys *config.SystemConfig) (int, error) {
	open := p.segments[len(p.segments)-1]
	n, err := open.Flush(p.segmentSize)
	if err != nil {
		return 0, err
	}
	p.accumulated = 0
	if open.IsClosed() {
		if err := p.rollSegment(sys); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (p *Partition) rollSegment(sys *config.SystemConfig) error {
	last := p.segments[len(p.segments)-1]
	if !last.IsClosed() {
		if err := last.Close(); err != nil {
			return err
		}
	}
	next, err := p.createSegment(sys, last.EndOffset+1)
	if err != nil {
		return err
	}
	p.segments = append(p.segments, next)
	return nil
}

// ReadRange reads messages in [lo, hi] across whichever segments intersect
// that range, consulting the message cache first.
func (p *Partition) ReadRange(lo, hi uint64) ([]model.Message, error) {
	p.mu.Lock()
	segs := append([]*segment.Segment(nil), p.segments...)
	p.mu.Unlock()

	if cached, ok := p.tryCacheRange(lo, hi); ok {
		return cached, nil
	}

	var out []model.Message
	for _, s := range segs {
		if s.EndOffset < lo && s.IsClosed() {
			continue
		}
		if s.StartOffset > hi {
			break
		}
		msgs, err := s.ReadRange(lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	if err := p.decodeAll(out); err != nil {
		return nil, err
	}
	for _, m := range out {
		p.cache.Put(p.Keys.PartitionID, m)
	}
	return out, nil
}

// decodeAll reverses the codec transform in place, restoring the plaintext
// payload callers and the cache both expect to see.
func (p *Partition) decodeAll(messages []model.Message) error {
	for i := range messages {
		plaintext, err := p.codec.Decode(messages[i].Payload)
		if err != nil {
			return err
		}
		messages[i].Payload = plaintext
	}
	return nil
}

// tryCacheRange serves [lo, hi] entirely from cache if every offset in the
// range is present; a partial hit still falls through to segment reads
// since the cache is advisory and may have evicted part of the range.
func (p *Partition) tryCacheRange(lo, hi uint64) ([]model.Message, bool) {
	if hi-lo > 4096 {
		return nil, false
	}
	out := make([]model.Message, 0, hi-lo+1)
	for o := lo; o <= hi; o++ {
		m, ok := p.cache.Get(p.Keys.PartitionID, o)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

// ReadByTimestamp returns the first message with Timestamp >= t across the
// partition's segments.
func (p *Partition) ReadByTimestamp(t int64) (*model.Message, error) {
	p.mu.Lock()
	segs := append([]*segment.Segment(nil), p.segments...)
	p.mu.Unlock()

	for _, s := range segs {
		m, err := s.ReadByTimestamp(t)
		if err != nil {
			return nil, err
		}
		if m != nil {
			plaintext, err := p.codec.Decode(m.Payload)
			if err != nil {
				return nil, err
			}
			m.Payload = plaintext
			return m, nil
		}
	}
	return nil, nil
}

// Purge removes all segments, resets current_offset to -1, and creates a
// fresh open segment starting at 0 (§4.2).
func (p *Partition) Purge(sys *config.SystemConfig) error {
	const op = "partition.Partition.Purge"
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.segments {
		if err := os.Remove(s.LogPath); err != nil && !os.IsNotExist(err) {
			return flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
		if err := os.Remove(s.IndexPath); err != nil && !os.IsNotExist(err) {
			return flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
		if err := os.Remove(s.TimeIndexPath); err != nil && !os.IsNotExist(err) {
			return flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
	}
	p.cache.DeletePartition(p.Keys.PartitionID)

	fresh, err := p.createSegment(sys, 0)
	if err != nil {
		return err
	}
	p.segments = []*segment.Segment{fresh}
	p.currentOffset = -1
	p.accumulated = 0
	return nil
}

// ExpiredSegments returns the closed segments eligible for deletion per the
// retention policy (§4.2): a segment is expired if closed and its age
// (now - end_timestamp) exceeds messageExpiry, or if overMaxSize and
// deleteOldestSegments is set, in which case every closed segment is a
// candidate and the topic's retention scheduler deletes oldest-first until
// back under budget.
func (p *Partition) ExpiredSegments(messageExpiry time.Duration, overMaxSize, deleteOldestSegments bool) []*segment.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []*segment.Segment
	nowMicros := time.Now().UnixMicro()
	for _, s := range p.segments {
		if !s.IsClosed() {
			continue
		}
		agedOut := messageExpiry > 0 && time.Duration(nowMicros-s.EndTimestamp)*time.Microsecond > messageExpiry
		if agedOut || (overMaxSize && deleteOldestSegments) {
			expired = append(expired, s)
		}
	}
	return expired
}

// RemoveSegment deletes one segment's three files and drops it from the
// in-memory sequence. The partition's remaining segments keep their
// original start_offsets; its lowest readable offset advances.
func (p *Partition) RemoveSegment(s *segment.Segment) error {
	const op = "partition.Partition.RemoveSegment"
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, path := range []string{s.LogPath, s.IndexPath, s.TimeIndexPath} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
	}
	for i, seg := range p.segments {
		if seg == s {
			p.segments = append(p.segments[:i], p.segments[i+1:]...)
			break
		}
	}
	return nil
}

// Segments returns a snapshot of the partition's current segment sequence.
func (p *Partition) Segments() []*segment.Segment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*segment.Segment(nil), p.segments...)
}

package segment

import (
	"io"
	"os"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
)

// ReadRange returns every message in [lo, hi] held by this segment. Callers
// are expected to have already established that the segment's offset range
// intersects [lo, hi].
func (s *Segment) ReadRange(lo, hi uint64) ([]model.Message, error) {
	const op = "segment.Segment.ReadRange"

	startPos := uint32(0)
	if s.index != nil {
		if lo > s.StartOffset {
			if e, ok := s.index.Lookup(uint32(lo - s.StartOffset)); ok {
				startPos = e.Position
			}
		}
	}

	data, err := s.readLogFrom(startPos)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	var out []model.Message
	pos := 0
	for pos < len(data) {
		batch, consumed, err := model.DecodeBatch(data[pos:])
		if err != nil {
			return nil, flowerr.Wrap(flowerr.KindCorruption, op, err)
		}
		if batch.BaseOffset > hi {
			break
		}
		for _, m := range batch.Messages {
			if m.Offset >= lo && m.Offset <= hi {
				out = append(out, m)
			}
		}
		pos += consumed
	}
	return out, nil
}

// ReadByTimestamp returns the first message with Timestamp >= t, or nil if
// none exists in this segment.
func (s *Segment) ReadByTimestamp(t int64) (*model.Message, error) {
	const op = "segment.Segment.ReadByTimestamp"

	startPos := uint32(0)
	if s.timeIndex != nil && s.index != nil {
		if e, ok := s.timeIndex.Lookup(t); ok {
			if ie, ok := s.index.Lookup(e.OffsetDelta); ok {
				startPos = ie.Position
			}
		}
	}

	data, err := s.readLogFrom(startPos)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	pos := 0
	for pos < len(data) {
		batch, consumed, err := model.DecodeBatch(data[pos:])
		if err != nil {
			return nil, flowerr.Wrap(flowerr.KindCorruption, op, err)
		}
		for i := range batch.Messages {
			if batch.Messages[i].Timestamp >= t {
				m := batch.Messages[i]
				return &m, nil
			}
		}
		pos += consumed
	}
	return nil, nil
}

func (s *Segment) readLogFrom(pos uint32) ([]byte, error) {
	f, err := os.Open(s.LogPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(pos), os.SEEK_SET); err != nil {
		return nil, err
	}
	return io.ReadAll(f)
}

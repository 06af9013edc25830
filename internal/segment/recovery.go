package segment

import (
	"os"

	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
)

// RecoveryRecord describes one anomaly found while loading a segment from
// disk, surfaced to the caller instead of silently dropped (§4.1 Load on
// recovery).
type RecoveryRecord struct {
	SegmentStartOffset uint64
	Kind                string // "rebuilt_index" | "truncated_trailing_batch" | "poisoned_message"
	Detail              string
}

// Load opens an existing segment's files from disk and reconstructs its
// in-memory state: size, last flushed offset/timestamp, and the sparse
// indexes, rebuilding any index entries missing because of a crash between
// the log write and the index write.
func Load(keys Keys, startOffset uint64, logPath, indexPath, timeIndexPath string, opts Options, isLastSegment bool) (*Segment, []RecoveryRecord, error) {
	const op = "segment.Load"

	f, err := os.OpenFile(logPath, os.O_RDWR, 0644)
	if err != nil {
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	onDiskIndex, err := LoadIndex(indexPath)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	onDiskTimeIndex, err := LoadTimeIndex(timeIndexPath)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
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
		s.index = onDiskIndex
	}
	if opts.CacheTimeIndexes {
		s.timeIndex = onDiskTimeIndex
	}

	var records []RecoveryRecord

	lastPos := uint32(0)
	indexed := false
	if e, ok := onDiskIndex.Last(); ok {
		lastPos = e.Position
		indexed = true
	}

	logData, err := os.ReadFile(logPath)
	if err != nil {
		_ = f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	pos := int(lastPos)
	rebuilt := false
	for pos < len(logData) {
		blen, ok := model.BatchLength(logData[pos:])
		if !ok {
			// Not enough bytes left for even a header: truncate.
			if pos < len(logData) {
				records = append(records, RecoveryRecord{
					SegmentStartOffset: startOffset,
					Kind:                "truncated_trailing_batch",
					Detail:              "partial batch header at end of log",
				})
			}
			logData = logData[:pos]
			break
		}
		total := model.BatchHeaderSize + blen
		if pos+total > len(logData) {
			records = append(records, RecoveryRecord{
				SegmentStartOffset: startOffset,
				Kind:                "truncated_trailing_batch",
				Detail:              "partial batch body at end of log",
			})
			logData = logData[:pos]
			break
		}

		batch, consumed, err := model.DecodeBatch(logData[pos:])
		if err != nil {
			records = append(records, RecoveryRecord{
				SegmentStartOffset: startOffset,
				Kind:                "truncated_trailing_batch",
				Detail:              err.Error(),
			})
			logData = logData[:pos]
			break
		}

		for i := range batch.Messages {
			m := &batch.Messages[i]
			checkedPayload := m.Payload
			if opts.DecodePayload != nil {
				if plaintext, err := opts.DecodePayload(m.Payload); err == nil {
					checkedPayload = plaintext
				} else {
					// Can't even decrypt/decompress it: treat as corrupt rather
					// than comparing checksums against undecodable bytes.
					m.State = model.StatePoisoned
					records = append(records, RecoveryRecord{
						SegmentStartOffset: startOffset,
						Kind:                "poisoned_message",
						Detail:              "payload undecodable: " + err.Error(),
					})
					continue
				}
			}
			if m.Checksum != model.ChecksumPayload(checkedPayload) {
				m.State = model.StatePoisoned
				records = append(records, RecoveryRecord{
					SegmentStartOffset: startOffset,
					Kind:                "poisoned_message",
					Detail:              "checksum mismatch",
				})
			}
		}

		if !indexed || uint32(pos) > lastPos {
			lastDelta := uint32(batch.Messages[len(batch.Messages)-1].Offset - startOffset)
			if s.index != nil {
				s.index.Append(lastDelta, uint32(pos))
			}
			if s.timeIndex != nil {
				s.timeIndex.Append(lastDelta, batch.MaxTimestamp)
			}
			rebuilt = true
		}

		s.EndOffset = batch.Messages[len(batch.Messages)-1].Offset
		s.EndTimestamp = batch.MaxTimestamp
		pos += consumed
	}

	if rebuilt {
		records = append(records, RecoveryRecord{
			SegmentStartOffset: startOffset,
			Kind:                "rebuilt_index",
			Detail:              "appended index entries missing after crash",
		})
	}

	s.currentSizeBytes = uint64(len(logData))
	s.lastIndexPos = uint32(len(logData))
	if err := f.Truncate(int64(len(logData))); err != nil {
		_ = f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		_ = f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	if !isLastSegment {
		s.closed = true
	}

	return s, records, nil
}

package statelog

import (
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Log is the append-only state/log file, the source of truth every mutating
// control-plane command durably records. For a mutation that only touches
// in-memory bookkeeping (create/update a user, a stream, a topic, a consumer
// group), the command handler applies the mutation first and rolls it back
// if the journal append then fails, since the id/hash/timestamp the record
// needs is itself produced as a side effect of applying the mutation. For a
// mutation that destroys on-disk data (delete a stream, topic, or
// partitions) and so cannot be rolled back, the handler appends the record
// first: a crash or disk failure between the two then leaves an orphaned
// directory the next startup's reconciliation quarantines or adopts, never
// a silent loss.
type Log struct {
	mu           sync.Mutex
	file         *os.File
	path         string
	enforceFsync bool
	nextIndex    uint64
}

// Open opens (creating if absent) the log at path for append, without
// reading its existing contents. Use OpenAndReplay at startup instead so
// nextIndex picks up where the previous run left off.
func Open(path string, enforceFsync bool) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "statelog.Open", err)
	}
	return &Log{file: f, path: path, enforceFsync: enforceFsync, nextIndex: 1}, nil
}

// OpenAndReplay opens the log and decodes every record already on disk, in
// order. A trailing partially-written record (a crash mid-append) is
// truncated rather than surfaced as an error. The returned Log is ready to
// accept further Append calls continuing from the last record's index.
func OpenAndReplay(path string, enforceFsync bool, logger *zap.Logger) (*Log, []Record, error) {
	const op = "statelog.OpenAndReplay"
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	var records []Record
	pos := 0
	for pos < len(data) {
		_, complete := RecordLength(data[pos:])
		if !complete {
			logger.Warn("truncating partially-written state log record",
				zap.String("path", path), zap.Int("position", pos))
			data = data[:pos]
			break
		}
		rec, consumed, err := DecodeRecord(data[pos:])
		if err != nil {
			logger.Warn("truncating unparseable state log record",
				zap.String("path", path), zap.Int("position", pos), zap.Error(err))
			data = data[:pos]
			break
		}
		records = append(records, rec)
		pos += consumed
	}

	if err := f.Truncate(int64(len(data))); err != nil {
		f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	nextIndex := uint64(1)
	if len(records) > 0 {
		nextIndex = records[len(records)-1].Index + 1
	}
	return &Log{file: f, path: path, enforceFsync: enforceFsync, nextIndex: nextIndex}, records, nil
}

// Append writes a new record with the next sequential index and the current
// wall-clock time, optionally fsyncing before returning.
func (l *Log) Append(code Code, data []byte) (Record, error) {
	const op = "statelog.Log.Append"
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := Record{Index: l.nextIndex, Timestamp: time.Now().UnixMicro(), Code: code, Data: data}
	if _, err := l.file.Write(rec.Encode()); err != nil {
		return Record{}, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	if l.enforceFsync {
		if err := l.file.Sync(); err != nil {
			return Record{}, flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
	}
	l.nextIndex++
	return rec, nil
}

// Close fsyncs and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, "statelog.Log.Close", err)
	}
	return l.file.Close()
}

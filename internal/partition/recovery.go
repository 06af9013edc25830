package partition

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/segment"
)

// Open reconstructs a partition from its on-disk segment files at startup,
// as opposed to Create, which always starts empty. A partition directory
// with no ".log" files yet is brand new and delegates to Create.
func Open(keys Keys, sys *config.SystemConfig, cfg Config, msgCache *cache.LRU) (*Partition, []segment.RecoveryRecord, error) {
	const op = "partition.Open"
	dir := sys.PartitionPath(keys.StreamID, keys.TopicID, keys.PartitionID)
	starts, err := segmentStartOffsets(dir)
	if err != nil {
		return nil, nil, err
	}
	if len(starts) == 0 {
		p, err := Create(keys, sys, cfg, msgCache)
		return p, nil, err
	}

	c := newCodec(cfg.Compression, cfg.Encryptor)
	p := &Partition{
		Keys:           keys,
		Dir:            dir,
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

	var allRecords []segment.RecoveryRecord
	for i, start := range starts {
		isLast := i == len(starts)-1
		segKeys := segment.Keys{StreamID: keys.StreamID, TopicID: keys.TopicID, PartitionID: keys.PartitionID}
		logPath := sys.SegmentLogPath(keys.StreamID, keys.TopicID, keys.PartitionID, start)
		indexPath := sys.SegmentIndexPath(keys.StreamID, keys.TopicID, keys.PartitionID, start)
		timeIndexPath := sys.SegmentTimeIndexPath(keys.StreamID, keys.TopicID, keys.PartitionID, start)
		seg, records, err := segment.Load(segKeys, start, logPath, indexPath, timeIndexPath, p.segOpts, isLast)
		if err != nil {
			return nil, nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
		p.segments = append(p.segments, seg)
		allRecords = append(allRecords, records...)
	}

	p.currentOffset = -1
	for i := len(p.segments) - 1; i >= 0; i-- {
		if p.segments[i].CurrentSizeBytes() > 0 {
			p.currentOffset = int64(p.segments[i].EndOffset)
			break
		}
	}

	return p, allRecords, nil
}

func segmentStartOffsets(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "partition.segmentStartOffsets", err)
	}
	var starts []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".log")
		n, err := strconv.ParseUint(stem, 10, 64)
		if err != nil {
			continue
		}
		starts = append(starts, n)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

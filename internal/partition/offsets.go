package partition

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/flowerr"
)

// loadOffsetFile reads an 8-byte little-endian offset file, returning 0 if
// it does not exist yet.
func loadOffsetFile(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, flowerr.Wrap(flowerr.KindFatalIO, "partition.loadOffsetFile", err)
	}
	if len(data) != 8 {
		return 0, flowerr.Newf(flowerr.KindCorruption, "partition.loadOffsetFile", "offset file %s has length %d, want 8", path, len(data))
	}
	return binary.LittleEndian.Uint64(data), nil
}

// storeOffsetFile overwrites an 8-byte little-endian offset file in place.
func storeOffsetFile(path string, offset uint64) error {
	const op = "partition.storeOffsetFile"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, offset)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	return nil
}

// LoadOffsets populates the partition's consumer/group offset maps from
// disk, called once at partition start.
func (p *Partition) LoadOffsets(sys *config.SystemConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	consumerDir := sys.ConsumerOffsetsPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID)
	if err := walkOffsetFiles(consumerDir, p.consumerOff); err != nil {
		return err
	}
	groupDir := sys.ConsumerGroupOffsetsPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID)
	return walkOffsetFiles(groupDir, p.groupOff)
}

func walkOffsetFiles(dir string, into map[uint32]uint64) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return flowerr.Wrap(flowerr.KindFatalIO, "partition.walkOffsetFiles", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		off, err := loadOffsetFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		into[uint32(id)] = off
	}
	return nil
}

// StoreConsumerOffset persists the committed offset for an individual
// consumer. Rejected with InvalidOffset if offset exceeds current_offset.
func (p *Partition) StoreConsumerOffset(sys *config.SystemConfig, consumerID uint32, offset uint64) error {
	const op = "partition.Partition.StoreConsumerOffset"
	p.mu.Lock()
	defer p.mu.Unlock()
	if int64(offset) > p.currentOffset {
		return flowerr.New(flowerr.KindInvalidOffset, op, "offset exceeds partition's current_offset")
	}
	path := filepath.Join(sys.ConsumerOffsetsPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID), strconv.FormatUint(uint64(consumerID), 10))
	if err := storeOffsetFile(path, offset); err != nil {
		return err
	}
	p.consumerOff[consumerID] = offset
	return nil
}

// StoreGroupOffset persists the committed offset for a consumer group. A
// group offset is the next offset the group reads (last delivered + 1), so
// it may be at most current_offset+1; a larger one is rejected with
// InvalidOffset.
func (p *Partition) StoreGroupOffset(sys *config.SystemConfig, groupID uint32, offset uint64) error {
	const op = "partition.Partition.StoreGroupOffset"
	p.mu.Lock()
	defer p.mu.Unlock()
	if int64(offset) > p.currentOffset+1 {
		return flowerr.New(flowerr.KindInvalidOffset, op, "offset exceeds partition's current_offset+1")
	}
	path := filepath.Join(sys.ConsumerGroupOffsetsPath(p.Keys.StreamID, p.Keys.TopicID, p.Keys.PartitionID), strconv.FormatUint(uint64(groupID), 10))
	if err := storeOffsetFile(path, offset); err != nil {
		return err
	}
	p.groupOff[groupID] = offset
	return nil
}

// ConsumerOffset returns the last committed offset for an individual
// consumer, or 0 if none was ever stored.
func (p *Partition) ConsumerOffset(consumerID uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consumerOff[consumerID]
}

// GroupOffset returns the last committed offset for a consumer group, or 0
// if none was ever stored.
func (p *Partition) GroupOffset(groupID uint32) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.groupOff[groupID]
}


package topic

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/cache"
	"github.com/ridgeline/flowvault/internal/compression"
	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/cryptoutil"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/partition"
	"github.com/ridgeline/flowvault/internal/retrypolicy"
)

// Keys identifies a topic within the stream tree.
type Keys struct {
	StreamID uint32
	TopicID  uint32
}

// Settings mirrors the topic-scoped config knobs named in the on-disk
// layout; Topic keeps its own copy so create_partitions can apply them to
// newly created partitions without re-reading process config.
type Settings struct {
	Segment              config.SegmentConfig
	Partition            config.PartitionConfig
	MaxSize              uint64
	DeleteOldestSegments bool
	PartitionerPolicy    PartitionerPolicy
	CompressionAlgorithm string
}

// Topic owns a set of partitions, a partitioner, and the retention sweep
// over its partitions. Grounded on vaultaire's StreamManager narrowed from
// "all streams" to "one topic's partitions", generalized from its
// in-memory-ring retention to segment deletion via partition.ExpiredSegments.
type Topic struct {
	Keys Keys
	Name string

	sys      *config.SystemConfig
	settings Settings
	logger   *zap.Logger

	msgCache      *cache.LRU
	retryPolicy   *retrypolicy.Policy
	encryptor     cryptoutil.Encryptor
	persisterDepth int

	mu         sync.RWMutex
	partitions map[uint32]*partition.Partition
	maxPartID  uint32
	partitioner *Partitioner

	// Consumer group ids referencing this topic are owned by internal/group;
	// Topic only needs to know which partition ids currently exist so a
	// coordinator can recompute assignment after growth/shrink.
}

// Config bundles everything Create needs beyond identity.
type Config struct {
	Name             string
	Settings         Settings
	InitialPartitions uint32
	Cache            *cache.LRU
	RetryPolicy      *retrypolicy.Policy
	Encryptor        cryptoutil.Encryptor
	PersisterQueueDepth int
	Logger           *zap.Logger
}

// Create builds a new topic with InitialPartitions partitions (ids 1..n),
// each with a fresh directory tree and empty open segment.
func Create(keys Keys, sys *config.SystemConfig, cfg Config) (*Topic, error) {
	const op = "topic.Create"
	if cfg.InitialPartitions == 0 {
		return nil, flowerr.New(flowerr.KindInvalidInput, op, "topic must have at least one partition")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Topic{
		Keys:           keys,
		Name:           cfg.Name,
		sys:            sys,
		settings:       cfg.Settings,
		logger:         logger,
		msgCache:       cfg.Cache,
		retryPolicy:    cfg.RetryPolicy,
		encryptor:      cfg.Encryptor,
		persisterDepth: cfg.PersisterQueueDepth,
		partitions:     make(map[uint32]*partition.Partition),
		partitioner:    NewPartitioner(cfg.Settings.PartitionerPolicy),
	}
	if t.persisterDepth <= 0 {
		t.persisterDepth = 1024
	}

	if err := os.MkdirAll(sys.PartitionsPath(keys.StreamID, keys.TopicID), 0o755); err != nil {
		return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}

	for i := uint32(1); i <= cfg.InitialPartitions; i++ {
		if err := t.createPartitionLocked(i); err != nil {
			return nil, err
		}
	}
	t.maxPartID = cfg.InitialPartitions
	return t, nil
}

func (t *Topic) partitionConfig() partition.Config {
	algo, err := compression.FromString(t.settings.CompressionAlgorithm)
	if err != nil {
		algo = compression.None
	}
	return partition.Config{
		SegmentSize:            t.settings.Segment.Size,
		MessagesRequiredToSave: t.settings.Partition.MessagesRequiredToSave,
		EnforceFsync:           t.settings.Partition.EnforceFsync,
		CacheIndexes:           t.settings.Segment.CacheIndexes,
		CacheTimeIndexes:       t.settings.Segment.CacheTimeIndexes,
		Compression:            algo,
		Encryptor:              t.encryptor,
	}
}

func (t *Topic) createPartitionLocked(partitionID uint32) error {
	p, err := partition.Create(partition.Keys{
		StreamID:    t.Keys.StreamID,
		TopicID:     t.Keys.TopicID,
		PartitionID: partitionID,
	}, t.sys, t.partitionConfig(), t.msgCache)
	if err != nil {
		return flowerr.Wrap(flowerr.KindFatalIO, "topic.createPartitionLocked", err)
	}
	if err := p.LoadOffsets(t.sys); err != nil {
		return err
	}
	if t.retryPolicy != nil {
		p.SetPersister(partition.NewPersister(p, t.retryPolicy, t.logger, t.persisterDepth))
	}
	t.partitions[partitionID] = p
	return nil
}

// Open reconstructs a topic from its on-disk partition directories at
// startup, loading existing segment data via partition.Open instead of
// Create's always-empty partitions. A topic with no partition directories
// yet falls back to Create's initial layout — unless requireExisting is set,
// in which case an empty partitions directory means the state log recorded
// a topic that the disk has since lost, and Open fails instead of silently
// fabricating replacement partitions (§4.6 Apply: state without disk is
// data loss). requireExisting is false only when the caller is adopting an
// on-disk topic directory that no state log record ever mentioned, where an
// empty partitions directory is legitimate (a crash between creating the
// topic directory and its first partition).
func Open(keys Keys, sys *config.SystemConfig, cfg Config, requireExisting bool) (*Topic, error) {
	const op = "topic.Open"
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Topic{
		Keys:           keys,
		Name:           cfg.Name,
		sys:            sys,
		settings:       cfg.Settings,
		logger:         logger,
		msgCache:       cfg.Cache,
		retryPolicy:    cfg.RetryPolicy,
		encryptor:      cfg.Encryptor,
		persisterDepth: cfg.PersisterQueueDepth,
		partitions:     make(map[uint32]*partition.Partition),
		partitioner:    NewPartitioner(cfg.Settings.PartitionerPolicy),
	}
	if t.persisterDepth <= 0 {
		t.persisterDepth = 1024
	}

	ids, err := existingPartitionIDs(sys.PartitionsPath(keys.StreamID, keys.TopicID))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if requireExisting {
			return nil, flowerr.Newf(flowerr.KindCorruption, op,
				"topic %d/%d has a state log record but no partition directories on disk", keys.StreamID, keys.TopicID)
		}
		if err := os.MkdirAll(sys.PartitionsPath(keys.StreamID, keys.TopicID), 0o755); err != nil {
			return nil, flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
		n := cfg.InitialPartitions
		if n == 0 {
			n = 1
		}
		for i := uint32(1); i <= n; i++ {
			if err := t.createPartitionLocked(i); err != nil {
				return nil, err
			}
		}
		t.maxPartID = n
		return t, nil
	}

	for _, id := range ids {
		pKeys := partition.Keys{StreamID: keys.StreamID, TopicID: keys.TopicID, PartitionID: id}
		p, _, err := partition.Open(pKeys, sys, t.partitionConfig(), t.msgCache)
		if err != nil {
			return nil, err
		}
		if err := p.LoadOffsets(sys); err != nil {
			return nil, err
		}
		if t.retryPolicy != nil {
			p.SetPersister(partition.NewPersister(p, t.retryPolicy, t.logger, t.persisterDepth))
		}
		t.partitions[id] = p
		if id > t.maxPartID {
			t.maxPartID = id
		}
	}
	return t, nil
}

func existingPartitionIDs(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, flowerr.Wrap(flowerr.KindFatalIO, "topic.existingPartitionIDs", err)
	}
	var ids []uint32
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// PartitionCount returns the current number of partitions.
func (t *Topic) PartitionCount() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return uint32(len(t.partitions))
}

// Partition returns the partition with the given id, if it exists.
func (t *Topic) Partition(id uint32) (*partition.Partition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.partitions[id]
	return p, ok
}

// PartitionIDs returns the current partition ids in ascending order.
func (t *Topic) PartitionIDs() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]uint32, 0, len(t.partitions))
	for id := range t.partitions {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Publish selects a target partition via the topic's partitioner and
// appends messages to it.
func (t *Topic) Publish(messages []model.Message, explicitPartitionID uint32, key []byte, mode partition.ConfirmMode) (partitionID uint32, lo, hi uint64, err error) {
	const op = "topic.Publish"
	t.mu.RLock()
	count := uint32(len(t.partitions))
	if count == 0 {
		t.mu.RUnlock()
		return 0, 0, 0, flowerr.New(flowerr.KindInvalidInput, op, "topic has no partitions")
	}
	partitionID, err = t.partitioner.Select(count, explicitPartitionID, key)
	if err != nil {
		t.mu.RUnlock()
		return 0, 0, 0, err
	}
	p, ok := t.partitions[partitionID]
	t.mu.RUnlock()
	if !ok {
		return 0, 0, 0, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", partitionID)
	}

	lo, hi, err = p.Append(t.sys, messages, mode)
	return partitionID, lo, hi, err
}

// CreatePartitions appends n partitions with ids current_max+1..current_max+n.
func (t *Topic) CreatePartitions(n uint32) error {
	const op = "topic.CreatePartitions"
	if n == 0 {
		return flowerr.New(flowerr.KindInvalidInput, op, "partition count must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.maxPartID + 1
	for id := start; id < start+n; id++ {
		if err := t.createPartitionLocked(id); err != nil {
			return err
		}
	}
	t.maxPartID += n
	return nil
}

// DeletePartitions drops the n highest-numbered partitions, removing their
// on-disk directories. Consumer groups referencing them drop the references
// on their next assignment recomputation (internal/group reads
// PartitionCount/PartitionIDs fresh on every Join/Leave).
func (t *Topic) DeletePartitions(n uint32) error {
	const op = "topic.DeletePartitions"
	t.mu.Lock()
	defer t.mu.Unlock()
	if n == 0 {
		return flowerr.New(flowerr.KindInvalidInput, op, "partition count must be positive")
	}
	if uint32(len(t.partitions)) < n {
		return flowerr.Newf(flowerr.KindInvalidInput, op, "cannot delete %d partitions, only %d exist", n, len(t.partitions))
	}
	for i := uint32(0); i < n; i++ {
		id := t.maxPartID - i
		p, ok := t.partitions[id]
		if !ok {
			continue
		}
		if err := p.Purge(t.sys); err != nil {
			return err
		}
		if err := os.RemoveAll(t.sys.PartitionPath(t.Keys.StreamID, t.Keys.TopicID, id)); err != nil {
			return flowerr.Wrap(flowerr.KindFatalIO, op, err)
		}
		delete(t.partitions, id)
	}
	t.maxPartID -= n
	return nil
}

// RetentionResult summarizes one sweep's deletions, used by the caller to
// decrement global counters.
type RetentionResult struct {
	SegmentsDeleted int
	MessagesDeleted int
}

// RunRetentionSweep asks every partition to compute its expired segments and
// deletes them.
func (t *Topic) RunRetentionSweep() (RetentionResult, error) {
	t.mu.RLock()
	partitions := make([]*partition.Partition, 0, len(t.partitions))
	for _, p := range t.partitions {
		partitions = append(partitions, p)
	}
	overMaxSize := t.settings.MaxSize > 0
	messageExpiry := t.settings.Segment.MessageExpiry
	deleteOldest := t.settings.DeleteOldestSegments
	t.mu.RUnlock()

	var result RetentionResult
	for _, p := range partitions {
		// overMaxSize is evaluated per-partition against the topic's
		// configured ceiling; a partition's own CurrentSizeBytes bookkeeping
		// isn't tracked topic-wide, so size-based eviction here only fires
		// through the age-based branch of ExpiredSegments until per-topic
		// byte accounting is wired (see DESIGN.md open question).
		expired := p.ExpiredSegments(messageExpiry, overMaxSize, deleteOldest)
		for _, seg := range expired {
			msgCount := int(seg.EndOffset - seg.StartOffset + 1)
			if err := p.RemoveSegment(seg); err != nil {
				return result, err
			}
			result.SegmentsDeleted++
			result.MessagesDeleted += msgCount
		}
	}
	if result.SegmentsDeleted > 0 {
		t.logger.Info("retention sweep deleted expired segments",
			zap.Uint32("stream_id", t.Keys.StreamID),
			zap.Uint32("topic_id", t.Keys.TopicID),
			zap.Int("segments_deleted", result.SegmentsDeleted),
			zap.Int("messages_deleted", result.MessagesDeleted))
	}
	return result, nil
}

// Purge empties every partition without deleting the partitions themselves.
func (t *Topic) Purge() error {
	t.mu.RLock()
	partitions := make([]*partition.Partition, 0, len(t.partitions))
	for _, p := range t.partitions {
		partitions = append(partitions, p)
	}
	t.mu.RUnlock()

	for _, p := range partitions {
		if err := p.Purge(t.sys); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes every partition's on-disk data. The caller is responsible
// for removing the topic's own directory and state-log tombstone.
func (t *Topic) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, p := range t.partitions {
		if err := p.Purge(t.sys); err != nil {
			return err
		}
		if err := os.RemoveAll(t.sys.PartitionPath(t.Keys.StreamID, t.Keys.TopicID, id)); err != nil {
			return flowerr.Wrap(flowerr.KindFatalIO, "topic.Delete", err)
		}
	}
	t.partitions = make(map[uint32]*partition.Partition)
	return nil
}

// Flush forces every partition's open-segment accumulator to disk,
// regardless of the messages_required_to_save threshold. Used by the
// periodic flusher background task (§5 Background tasks (b)), as opposed to
// Shutdown's one-shot, deadline-bounded drain at process exit.
func (t *Topic) Flush(sys *config.SystemConfig) error {
	t.mu.RLock()
	partitions := make([]*partition.Partition, 0, len(t.partitions))
	for _, p := range t.partitions {
		partitions = append(partitions, p)
	}
	t.mu.RUnlock()

	for _, p := range partitions {
		if _, err := p.Flush(sys); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every partition's background persister and flushes
// outstanding accumulators synchronously.
func (t *Topic) Shutdown(deadline time.Duration) error {
	t.mu.RLock()
	partitions := make([]*partition.Partition, 0, len(t.partitions))
	for _, p := range t.partitions {
		partitions = append(partitions, p)
	}
	t.mu.RUnlock()

	done := make(chan error, 1)
	go func() {
		for _, p := range partitions {
			if _, err := p.Flush(t.sys); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(deadline):
		return fmt.Errorf("topic %d shutdown: flush deadline exceeded", t.Keys.TopicID)
	}
}

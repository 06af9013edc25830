// Package cache implements the partition message cache: a bounded in-memory
// ring keyed by offset. Cache is advisory — correctness never depends on it.
// Grounded directly on the teacher's internal/cache/lru.go LRU (container/list
// + map, hit/miss/eviction counters), re-keyed from (container, artifact) to
// (partitionID, offset).
package cache

import (
	"container/list"
	"sync"

	"github.com/ridgeline/flowvault/internal/model"
)

type entry struct {
	partitionID uint32
	offset      uint64
	message     model.Message
	size        int64
}

type key struct {
	partitionID uint32
	offset      uint64
}

// LRU is a bounded, byte-budgeted message cache shared by every partition in
// the process; capacityBytes is set by the global memory tracker.
type LRU struct {
	mu            sync.RWMutex
	capacityBytes int64
	usedBytes     int64
	items         map[key]*list.Element
	order         *list.List

	hits      int64
	misses    int64
	evictions int64
}

// NewLRU creates a cache with the given byte capacity.
func NewLRU(capacityBytes int64) *LRU {
	return &LRU{
		capacityBytes: capacityBytes,
		items:         make(map[key]*list.Element),
		order:         list.New(),
	}
}

// Get returns a cached message for (partitionID, offset), if present.
func (c *LRU) Get(partitionID uint32, offset uint64) (model.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{partitionID, offset}
	elem, ok := c.items[k]
	if !ok {
		c.misses++
		return model.Message{}, false
	}
	c.order.MoveToFront(elem)
	c.hits++
	return elem.Value.(*entry).message, true
}

// Put inserts or updates a cached message, evicting the oldest entries if the
// byte budget is exceeded.
func (c *LRU) Put(partitionID uint32, msg model.Message) {
	size := int64(len(msg.Payload)) + 64 // rough per-entry overhead

	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{partitionID, msg.Offset}
	if elem, ok := c.items[k]; ok {
		c.order.MoveToFront(elem)
		old := elem.Value.(*entry)
		c.usedBytes += size - old.size
		elem.Value = &entry{partitionID: partitionID, offset: msg.Offset, message: msg, size: size}
		c.evictIfNeededLocked()
		return
	}

	e := &entry{partitionID: partitionID, offset: msg.Offset, message: msg, size: size}
	elem := c.order.PushFront(e)
	c.items[k] = elem
	c.usedBytes += size
	c.evictIfNeededLocked()
}

func (c *LRU) evictIfNeededLocked() {
	for c.usedBytes > c.capacityBytes && c.order.Len() > 0 {
		c.evictOldestLocked()
	}
}

func (c *LRU) evictOldestLocked() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	e := elem.Value.(*entry)
	delete(c.items, key{e.partitionID, e.offset})
	c.usedBytes -= e.size
	c.evictions++
}

// EvictFraction drops the oldest fraction (0..1) of this partition's entries,
// used by the global memory tracker's proportional eviction policy (§5).
func (c *LRU) EvictFraction(partitionID uint32, fraction float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []key
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		if e := elem.Value.(*entry); e.partitionID == partitionID {
			keys = append(keys, key{e.partitionID, e.offset})
		}
	}
	n := int(float64(len(keys)) * fraction)
	evicted := 0
	for i := 0; i < n && i < len(keys); i++ {
		elem, ok := c.items[keys[i]]
		if !ok {
			continue
		}
		c.order.Remove(elem)
		e := elem.Value.(*entry)
		delete(c.items, keys[i])
		c.usedBytes -= e.size
		c.evictions++
		evicted++
	}
	return evicted
}

// Delete removes a single cached entry, e.g. on purge.
func (c *LRU) Delete(partitionID uint32, offset uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{partitionID, offset}
	if elem, ok := c.items[k]; ok {
		c.order.Remove(elem)
		e := elem.Value.(*entry)
		c.usedBytes -= e.size
		delete(c.items, k)
	}
}

// DeletePartition clears all entries for a partition, e.g. on partition
// deletion or purge.
func (c *LRU) DeletePartition(partitionID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, elem := range c.items {
		if k.partitionID == partitionID {
			c.order.Remove(elem)
			e := elem.Value.(*entry)
			c.usedBytes -= e.size
			delete(c.items, k)
		}
	}
}

// Stats reports current cache occupancy and hit/miss/eviction counters.
type Stats struct {
	Entries       int
	UsedBytes     int64
	CapacityBytes int64
	Hits          int64
	Misses        int64
	Evictions     int64
}

func (c *LRU) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:       c.order.Len(),
		UsedBytes:     c.usedBytes,
		CapacityBytes: c.capacityBytes,
		Hits:          c.hits,
		Misses:        c.misses,
		Evictions:     c.evictions,
	}
}

// SetCapacity updates the byte budget, e.g. when the memory tracker resizes
// the global cache.
func (c *LRU) SetCapacity(capacityBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capacityBytes = capacityBytes
	c.evictIfNeededLocked()
}

// FractionUsedByPartition reports what fraction of the cache's byte budget a
// given partition currently occupies, for proportional eviction decisions.
func (c *LRU) FractionUsedByPartition(partitionID uint32) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.usedBytes == 0 {
		return 0
	}
	var partitionBytes int64
	for k, elem := range c.items {
		if k.partitionID == partitionID {
			partitionBytes += elem.Value.(*entry).size
		}
	}
	return float64(partitionBytes) / float64(c.usedBytes)
}

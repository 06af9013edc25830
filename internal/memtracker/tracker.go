// Package memtracker implements the global memory tracker that sizes the
// shared partition message cache (§4.2, §5) and triggers proportional
// per-partition eviction when the cache's byte budget is exceeded. Grounded
// on the teacher's internal/drivers/bandwidth_quota.go: a single shared
// budget (there, bytes/month; here, cache bytes) tracked per key (there,
// tenant; here, partition) with a background reconciliation loop (there, a
// monthly reset timer; here, a periodic eviction sweep).
package memtracker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgeline/flowvault/internal/cache"
)

// Tracker owns the shared message cache's byte budget and periodically
// evicts the same over-budget fraction from every partition holding cached
// entries, so each partition gives up bytes in proportion to its share.
type Tracker struct {
	mu            sync.Mutex
	cache         *cache.LRU
	capacityBytes int64
	logger        *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// New builds a Tracker over the given cache with the given byte capacity,
// which the tracker also applies to the cache immediately.
func New(c *cache.LRU, capacityBytes int64, logger *zap.Logger) *Tracker {
	c.SetCapacity(capacityBytes)
	return &Tracker{
		cache:         c,
		capacityBytes: capacityBytes,
		logger:        logger,
		stop:          make(chan struct{}),
	}
}

// Resize updates the cache's byte budget, e.g. when the cache.size memory
// quota is re-resolved against current system memory.
func (t *Tracker) Resize(capacityBytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capacityBytes = capacityBytes
	t.cache.SetCapacity(capacityBytes)
}

// CapacityBytes reports the current byte budget.
func (t *Tracker) CapacityBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacityBytes
}

// EvictFromPartition evicts a fraction of a single partition's cached
// entries, e.g. on its own retention/purge.
func (t *Tracker) EvictFromPartition(partitionID uint32, fraction float64) int {
	return t.cache.EvictFraction(partitionID, fraction)
}

// RunEvictionSweeps starts a background loop that, every interval, checks
// whether the cache is over budget and if so evicts proportionally from
// every partition currently holding cached entries. The LRU's own
// evictIfNeeded already bounds the cache on every Put and every SetCapacity,
// so this sweep is a backstop that only acts if the cache is ever found over
// budget, mirroring the teacher's monthly reset timer running independent
// of request traffic.
func (t *Tracker) RunEvictionSweeps(interval time.Duration, partitionIDs func() []uint32) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.sweep(partitionIDs())
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) sweep(partitionIDs []uint32) {
	stats := t.cache.Stats()
	if stats.UsedBytes <= stats.CapacityBytes {
		return
	}
	overBy := float64(stats.UsedBytes-stats.CapacityBytes) / float64(stats.UsedBytes)
	for _, pid := range partitionIDs {
		share := t.cache.FractionUsedByPartition(pid)
		if share <= 0 {
			continue
		}
		evicted := t.cache.EvictFraction(pid, overBy)
		if evicted > 0 {
			t.logger.Debug("memtracker evicted over-budget partition share",
				zap.Uint32("partition_id", pid), zap.Int("evicted", evicted))
		}
	}
}

// Stop halts the background eviction sweep goroutine.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Package topic implements the topic: partitioner policy, partition
// count growth/shrink, and retention scheduling (§3, §4.3); the
// consumer-group registry lives in internal/group. Grounded on vaultaire's internal/streaming/stream.go
// (`StreamManager.Publish`'s partition selection by hashing the message key)
// generalized to three explicit policies, and
// original_source/streaming/src/topic.rs for partition lifecycle semantics.
package topic

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// PartitionerPolicy selects which partition a send targets.
type PartitionerPolicy int

const (
	// Balanced round-robins across partitions; the counter is local to the
	// topic and not persisted.
	Balanced PartitionerPolicy = iota
	// PartitionID targets an explicit partition, failing if out of range.
	PartitionID
	// MessagesKey hashes a supplied key modulo the partition count.
	MessagesKey
)

func (p PartitionerPolicy) String() string {
	switch p {
	case PartitionID:
		return "partition_id"
	case MessagesKey:
		return "messages_key"
	default:
		return "balanced"
	}
}

// ParsePartitionerPolicy parses the config-file spelling.
func ParsePartitionerPolicy(s string) (PartitionerPolicy, error) {
	switch s {
	case "balanced", "":
		return Balanced, nil
	case "partition_id":
		return PartitionID, nil
	case "messages_key":
		return MessagesKey, nil
	default:
		return 0, flowerr.Newf(flowerr.KindInvalidInput, "topic.ParsePartitionerPolicy", "unknown partitioner policy %q", s)
	}
}

// Partitioner selects a target partition id (1-based, matching the spec's
// partition id space) for a send, given the topic's current partition count.
type Partitioner struct {
	policy  PartitionerPolicy
	counter uint64 // round-robin cursor for Balanced
}

// NewPartitioner builds a partitioner for the given policy.
func NewPartitioner(policy PartitionerPolicy) *Partitioner {
	return &Partitioner{policy: policy}
}

// Select returns the target partition id in [1, partitionCount].
// explicitPartitionID is consulted only under PartitionID; key only under
// MessagesKey.
func (p *Partitioner) Select(partitionCount uint32, explicitPartitionID uint32, key []byte) (uint32, error) {
	const op = "topic.Partitioner.Select"
	if partitionCount == 0 {
		return 0, flowerr.New(flowerr.KindInvalidInput, op, "topic has no partitions")
	}

	switch p.policy {
	case PartitionID:
		if explicitPartitionID == 0 || explicitPartitionID > partitionCount {
			return 0, flowerr.Newf(flowerr.KindInvalidInput, op, "partition id %d out of range [1, %d]", explicitPartitionID, partitionCount)
		}
		return explicitPartitionID, nil

	case MessagesKey:
		h := xxhash.Sum64(key)
		return uint32(h%uint64(partitionCount)) + 1, nil

	default: // Balanced
		n := atomic.AddUint64(&p.counter, 1) - 1
		return uint32(n%uint64(partitionCount)) + 1, nil
	}
}

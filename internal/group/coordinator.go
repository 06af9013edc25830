// Package group implements the consumer-group coordinator: membership,
// deterministic partition assignment, and poll-with-cursor. Grounded on
// original_source/streaming/src/topics/groups.rs for the lifecycle error
// taxonomy (already-exists/not-found on create/delete, join/leave by member
// id) and vaultaire's ConsumerGroup/Subscription types for the Go shape,
// replacing vaultaire's polling-goroutine push model with the spec's
// pull-based assigned_partition/poll-cursor model.
package group

import (
	"sort"
	"sync"
	"time"

	"github.com/ridgeline/flowvault/internal/config"
	"github.com/ridgeline/flowvault/internal/flowerr"
	"github.com/ridgeline/flowvault/internal/model"
	"github.com/ridgeline/flowvault/internal/topic"
)

// member is one joined consumer, ordered by join time ascending with
// session id as the stable secondary sort key.
type member struct {
	sessionID uint32
	joinedAt  time.Time
	cursor    int // round-robin index into this member's assigned partitions
}

// Coordinator tracks one consumer group's membership and computes partition
// assignment on demand; it is never cached across join/leave so assignment
// is always a pure function of (ordered member list, partition count).
type Coordinator struct {
	ID      uint32
	Name    string
	TopicID uint32

	topic *topic.Topic

	mu      sync.Mutex
	members []member
}

// New builds a coordinator for a topic. t supplies the live partition count
// and partition lookups; the coordinator never caches the count so growth
// and shrink of the topic are reflected on the next join/leave/assignment.
func New(id uint32, name string, t *topic.Topic) *Coordinator {
	return &Coordinator{ID: id, Name: name, TopicID: t.Keys.TopicID, topic: t}
}

// Join adds a new member, failing with AlreadyExists if already a member.
func (c *Coordinator) Join(sessionID uint32) error {
	const op = "group.Coordinator.Join"
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.members {
		if m.sessionID == sessionID {
			return flowerr.Newf(flowerr.KindAlreadyExists, op, "session %d already a member of group %d", sessionID, c.ID)
		}
	}
	c.members = append(c.members, member{sessionID: sessionID, joinedAt: time.Now()})
	c.sortMembersLocked()
	return nil
}

// Leave removes a member; it is a no-op if sessionID is not a member.
func (c *Coordinator) Leave(sessionID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.members {
		if m.sessionID == sessionID {
			c.members = append(c.members[:i], c.members[i+1:]...)
			return nil
		}
	}
	return nil
}

// sortMembersLocked restores join-time-ascending order, breaking ties by
// session id, after an insert.
func (c *Coordinator) sortMembersLocked() {
	sort.SliceStable(c.members, func(i, j int) bool {
		if !c.members[i].joinedAt.Equal(c.members[j].joinedAt) {
			return c.members[i].joinedAt.Before(c.members[j].joinedAt)
		}
		return c.members[i].sessionID < c.members[j].sessionID
	})
}

// MemberSessionIDs returns the current membership in assignment order.
func (c *Coordinator) MemberSessionIDs() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, len(c.members))
	for i, m := range c.members {
		out[i] = m.sessionID
	}
	return out
}

// rankLocked returns the index of sessionID within the ordered member list,
// or -1 if not a member.
func (c *Coordinator) rankLocked(sessionID uint32) int {
	for i, m := range c.members {
		if m.sessionID == sessionID {
			return i
		}
	}
	return -1
}

// AssignedPartitions returns every partition id assigned to sessionID under
// the i mod M == rank(member) rule, in ascending order. Partition ids are
// 1-based; M is the current member count, P the current partition count.
func (c *Coordinator) AssignedPartitions(sessionID uint32) ([]uint32, error) {
	const op = "group.Coordinator.AssignedPartitions"
	c.mu.Lock()
	defer c.mu.Unlock()

	rank := c.rankLocked(sessionID)
	if rank < 0 {
		return nil, flowerr.Newf(flowerr.KindNotFound, op, "session %d is not a member of group %d", sessionID, c.ID)
	}
	m := uint32(len(c.members))
	partitionCount := c.topic.PartitionCount()

	var assigned []uint32
	for i := uint32(0); i < partitionCount; i++ {
		if i%m == uint32(rank) {
			assigned = append(assigned, i+1) // partition ids are 1-based
		}
	}
	return assigned, nil
}

// AssignedPartition resolves the single partition id this member should
// read from for its next poll, round-robining across its assigned set so
// repeated polls visit every owned partition in turn.
func (c *Coordinator) AssignedPartition(sessionID uint32) (uint32, error) {
	const op = "group.Coordinator.AssignedPartition"
	assigned, err := c.AssignedPartitions(sessionID)
	if err != nil {
		return 0, err
	}
	if len(assigned) == 0 {
		return 0, flowerr.Newf(flowerr.KindResourceLimit, op, "session %d has no assigned partitions (more members than partitions)", sessionID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	rank := c.rankLocked(sessionID)
	if rank < 0 {
		return 0, flowerr.Newf(flowerr.KindNotFound, op, "session %d is not a member of group %d", sessionID, c.ID)
	}
	idx := c.members[rank].cursor % len(assigned)
	c.members[rank].cursor++
	return assigned[idx], nil
}

// Poll resolves the next partition for sessionID, reads up to count messages
// starting at the group's stored offset for that partition, and — when
// autoCommit is set — advances the group offset to the last delivered
// offset + 1. With autoCommit false the caller must call Commit explicitly;
// until it does, a retried poll redelivers the same messages.
func (c *Coordinator) Poll(sys *config.SystemConfig, sessionID uint32, count uint32, autoCommit bool) (partitionID uint32, messages []model.Message, err error) {
	const op = "group.Coordinator.Poll"
	partitionID, err = c.AssignedPartition(sessionID)
	if err != nil {
		return 0, nil, err
	}

	p, ok := c.topic.Partition(partitionID)
	if !ok {
		return 0, nil, flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", partitionID)
	}

	lo := p.GroupOffset(c.ID)
	current := p.CurrentOffset()
	if current < 0 || lo > uint64(current) {
		return partitionID, nil, nil
	}
	hi := lo + uint64(count) - 1
	if hi > uint64(current) {
		hi = uint64(current)
	}

	messages, err = p.ReadRange(lo, hi)
	if err != nil {
		return partitionID, nil, err
	}
	if len(messages) == 0 {
		return partitionID, messages, nil
	}

	if autoCommit {
		last := messages[len(messages)-1]
		if err := p.StoreGroupOffset(sys, c.ID, last.Offset+1); err != nil {
			return partitionID, messages, err
		}
	}
	return partitionID, messages, nil
}

// Lag sums, across every partition of the group's topic, the partition's
// current high watermark minus the group's committed offset. Used by the
// metrics publisher background task (§5 Background tasks (d)) to keep the
// consumer_group_lag gauge fresh for groups that aren't actively polling.
func (c *Coordinator) Lag() int64 {
	var total int64
	for _, partitionID := range c.topic.PartitionIDs() {
		p, ok := c.topic.Partition(partitionID)
		if !ok {
			continue
		}
		current := p.CurrentOffset()
		if current < 0 {
			continue
		}
		committed := p.GroupOffset(c.ID)
		lag := current - int64(committed) + 1
		if lag > 0 {
			total += lag
		}
	}
	return total
}

// Commit advances the group's stored offset for partitionID to offset+1.
// Used when auto_commit is off and the caller confirms processing.
func (c *Coordinator) Commit(sys *config.SystemConfig, partitionID uint32, offset uint64) error {
	const op = "group.Coordinator.Commit"
	p, ok := c.topic.Partition(partitionID)
	if !ok {
		return flowerr.Newf(flowerr.KindNotFound, op, "partition %d not found", partitionID)
	}
	return p.StoreGroupOffset(sys, c.ID, offset+1)
}

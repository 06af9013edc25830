package config

import (
	"fmt"
	"path/filepath"
)

// Path-builder methods reproducing the authoritative on-disk layout from
// the original source's SystemConfig, so no other package builds paths with
// ad-hoc filepath.Join calls.

func (c *SystemConfig) RootPath() string { return c.Path }

func (c *SystemConfig) StatePath() string    { return filepath.Join(c.Path, "state") }
func (c *SystemConfig) StateLogPath() string { return filepath.Join(c.StatePath(), "log") }
func (c *SystemConfig) StateInfoPath() string { return filepath.Join(c.StatePath(), "info") }
func (c *SystemConfig) StateTokensPath() string { return filepath.Join(c.StatePath(), "tokens") }

func (c *SystemConfig) RuntimePath() string { return filepath.Join(c.Path, "runtime") }
func (c *SystemConfig) CurrentConfigPath() string {
	return filepath.Join(c.RuntimePath(), "current_config.toml")
}

func (c *SystemConfig) BackupPath() string { return filepath.Join(c.Path, "backup") }
func (c *SystemConfig) CompatibilityBackupPath() string {
	return filepath.Join(c.BackupPath(), "compatibility")
}

func (c *SystemConfig) StreamsPath() string { return filepath.Join(c.Path, "streams") }
func (c *SystemConfig) StreamPath(streamID uint32) string {
	return filepath.Join(c.StreamsPath(), fmt.Sprintf("%d", streamID))
}

func (c *SystemConfig) TopicsPath(streamID uint32) string {
	return filepath.Join(c.StreamPath(streamID), "topics")
}
func (c *SystemConfig) TopicPath(streamID, topicID uint32) string {
	return filepath.Join(c.TopicsPath(streamID), fmt.Sprintf("%d", topicID))
}

func (c *SystemConfig) PartitionsPath(streamID, topicID uint32) string {
	return filepath.Join(c.TopicPath(streamID, topicID), "partitions")
}
func (c *SystemConfig) PartitionPath(streamID, topicID, partitionID uint32) string {
	return filepath.Join(c.PartitionsPath(streamID, topicID), fmt.Sprintf("%d", partitionID))
}

func (c *SystemConfig) OffsetsPath(streamID, topicID, partitionID uint32) string {
	return filepath.Join(c.PartitionPath(streamID, topicID, partitionID), "offsets")
}
func (c *SystemConfig) ConsumerOffsetsPath(streamID, topicID, partitionID uint32) string {
	return filepath.Join(c.OffsetsPath(streamID, topicID, partitionID), "consumers")
}
func (c *SystemConfig) ConsumerOffsetPath(streamID, topicID, partitionID, consumerID uint32) string {
	return filepath.Join(c.ConsumerOffsetsPath(streamID, topicID, partitionID), fmt.Sprintf("%d", consumerID))
}
func (c *SystemConfig) ConsumerGroupOffsetsPath(streamID, topicID, partitionID uint32) string {
	return filepath.Join(c.OffsetsPath(streamID, topicID, partitionID), "groups")
}
func (c *SystemConfig) ConsumerGroupOffsetPath(streamID, topicID, partitionID, groupID uint32) string {
	return filepath.Join(c.ConsumerGroupOffsetsPath(streamID, topicID, partitionID), fmt.Sprintf("%d", groupID))
}

// SegmentFilePrefix builds the 20-digit zero-padded start_offset file stem
// shared by a segment's .log/.index/.timeindex files.
func SegmentFilePrefix(startOffset uint64) string {
	return fmt.Sprintf("%020d", startOffset)
}

func (c *SystemConfig) SegmentLogPath(streamID, topicID, partitionID uint32, startOffset uint64) string {
	return filepath.Join(c.PartitionPath(streamID, topicID, partitionID), SegmentFilePrefix(startOffset)+".log")
}
func (c *SystemConfig) SegmentIndexPath(streamID, topicID, partitionID uint32, startOffset uint64) string {
	return filepath.Join(c.PartitionPath(streamID, topicID, partitionID), SegmentFilePrefix(startOffset)+".index")
}
func (c *SystemConfig) SegmentTimeIndexPath(streamID, topicID, partitionID uint32, startOffset uint64) string {
	return filepath.Join(c.PartitionPath(streamID, topicID, partitionID), SegmentFilePrefix(startOffset)+".timeindex")
}

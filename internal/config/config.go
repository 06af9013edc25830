// Package config defines Flowvault's configuration tree: YAML file load,
// environment override, path-builder methods for the on-disk layout, and the
// current_config snapshot written at startup.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// SystemConfig controls the root data directory.
type SystemConfig struct {
	Path string `yaml:"path"`
}

// SegmentConfig controls per-segment storage behavior.
type SegmentConfig struct {
	Size             uint64        `yaml:"size"`
	CacheIndexes     bool          `yaml:"cache_indexes"`
	CacheTimeIndexes bool          `yaml:"cache_time_indexes"`
	MessageExpiry    time.Duration `yaml:"message_expiry"`
}

// PartitionConfig controls the append/flush behavior of partitions.
type PartitionConfig struct {
	MessagesRequiredToSave int  `yaml:"messages_required_to_save"`
	EnforceFsync           bool `yaml:"enforce_fsync"`
	ValidateChecksum       bool `yaml:"validate_checksum"`
}

// TopicConfig controls topic-level retention behavior.
type TopicConfig struct {
	MaxSize              uint64 `yaml:"max_size"`
	DeleteOldestSegments bool   `yaml:"delete_oldest_segments"`
}

// StateConfig controls the write-ahead state log.
type StateConfig struct {
	EnforceFsync bool `yaml:"enforce_fsync"`
}

// CacheConfig controls the partition message cache.
type CacheConfig struct {
	Enabled bool                `yaml:"enabled"`
	Size    MemoryResourceQuota `yaml:"size"`
}

// EncryptionConfig controls payload encryption.
type EncryptionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"` // 32-byte base64, AES-256-GCM
}

// MessageDeduplicationConfig controls producer-id based dedup windows.
type MessageDeduplicationConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	Expiry     time.Duration `yaml:"expiry"`
}

// RecoveryConfig controls startup reconciliation between the state log and
// on-disk directories.
type RecoveryConfig struct {
	RecreateMissingState bool `yaml:"recreate_missing_state"`
}

// TelemetryConfig controls ambient logging/ops-surface behavior. Not named by
// the core spec, but every service in this lineage carries it.
type TelemetryConfig struct {
	LogLevel  string `yaml:"log_level"`
	OpsListen string `yaml:"ops_listen"`
}

// Config is the full process configuration tree.
type Config struct {
	System               SystemConfig               `yaml:"system"`
	Segment              SegmentConfig              `yaml:"segment"`
	Partition            PartitionConfig            `yaml:"partition"`
	Topic                TopicConfig                `yaml:"topic"`
	State                StateConfig                `yaml:"state"`
	Cache                CacheConfig                `yaml:"cache"`
	Encryption           EncryptionConfig           `yaml:"encryption"`
	MessageDeduplication MessageDeduplicationConfig `yaml:"message_deduplication"`
	Recovery             RecoveryConfig             `yaml:"recovery"`
	Telemetry            TelemetryConfig            `yaml:"telemetry"`
}

// Default returns the configuration defaults, mirroring the original
// source's server/src/configs/defaults.rs values.
func Default() *Config {
	return &Config{
		System: SystemConfig{Path: "local_data"},
		Segment: SegmentConfig{
			Size:             1 << 30, // 1 GiB
			CacheIndexes:     true,
			CacheTimeIndexes: true,
			MessageExpiry:    0,
		},
		Partition: PartitionConfig{
			MessagesRequiredToSave: 1000,
			EnforceFsync:           false,
			ValidateChecksum:       false,
		},
		Topic: TopicConfig{
			MaxSize:              0,
			DeleteOldestSegments: false,
		},
		State: StateConfig{EnforceFsync: true},
		Cache: CacheConfig{
			Enabled: true,
			Size:    Percentage(20),
		},
		Encryption: EncryptionConfig{Enabled: false},
		MessageDeduplication: MessageDeduplicationConfig{
			Enabled:    false,
			MaxEntries: 10_000,
			Expiry:     time.Minute,
		},
		Recovery:  RecoveryConfig{RecreateMissingState: false},
		Telemetry: TelemetryConfig{LogLevel: "info", OpsListen: ":9080"},
	}
}

// Load reads a YAML config file, falling back to defaults for any field the
// file omits, then applies FLOWVAULT_* environment overrides.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
			}
		} else {
			fileCfg := Default()
			if err := yaml.Unmarshal(data, fileCfg); err != nil {
				return nil, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
			}
			cfg = fileCfg
		}
	}

	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot operate under.
func (c *Config) Validate() error {
	const op = "config.Validate"
	if c.System.Path == "" {
		return flowerr.New(flowerr.KindInvalidInput, op, "system.path must not be empty")
	}
	if c.Segment.Size == 0 {
		return flowerr.New(flowerr.KindInvalidInput, op, "segment.size must be positive")
	}
	if c.Encryption.Enabled && c.Encryption.Key == "" {
		return flowerr.New(flowerr.KindInvalidInput, op, "encryption.key is required when encryption.enabled")
	}
	return nil
}

package config

import (
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides cfg fields from FLOWVAULT_* environment variables,
// following the same override-over-file-over-default precedence as the
// teacher's LoadFromEnv.
func ApplyEnv(cfg *Config) {
	if path := os.Getenv("FLOWVAULT_SYSTEM_PATH"); path != "" {
		cfg.System.Path = path
	}
	if logLevel := os.Getenv("FLOWVAULT_LOG_LEVEL"); logLevel != "" {
		cfg.Telemetry.LogLevel = logLevel
	}
	if opsListen := os.Getenv("FLOWVAULT_OPS_LISTEN"); opsListen != "" {
		cfg.Telemetry.OpsListen = opsListen
	}
	if size := os.Getenv("FLOWVAULT_SEGMENT_SIZE"); size != "" {
		if n, err := strconv.ParseUint(size, 10, 64); err == nil {
			cfg.Segment.Size = n
		}
	}
	if expiry := os.Getenv("FLOWVAULT_SEGMENT_MESSAGE_EXPIRY"); expiry != "" {
		if d, err := time.ParseDuration(expiry); err == nil {
			cfg.Segment.MessageExpiry = d
		}
	}
	if cacheSize := os.Getenv("FLOWVAULT_CACHE_SIZE"); cacheSize != "" {
		if quota, err := ParseMemoryResourceQuota(cacheSize); err == nil {
			cfg.Cache.Size = quota
		}
	}
	if key := os.Getenv("FLOWVAULT_ENCRYPTION_KEY"); key != "" {
		cfg.Encryption.Key = key
		cfg.Encryption.Enabled = true
	}
}

// GetEnvOrDefault returns the environment variable value or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

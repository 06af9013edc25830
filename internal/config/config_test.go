package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ridgeline/flowvault/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestParseMemoryResourceQuotaPercentage(t *testing.T) {
	q, err := config.ParseMemoryResourceQuota("20%")
	require.NoError(t, err)
	require.True(t, q.IsPercentage())
	require.Equal(t, uint64(200), q.ResolveBytes(1000))
}

func TestParseMemoryResourceQuotaBytes(t *testing.T) {
	q, err := config.ParseMemoryResourceQuota("512MB")
	require.NoError(t, err)
	require.False(t, q.IsPercentage())
	require.Equal(t, uint64(512*1<<20), q.ResolveBytes(0))
}

func TestParseMemoryResourceQuotaInvalid(t *testing.T) {
	_, err := config.ParseMemoryResourceQuota("150%")
	require.Error(t, err)
}

func TestValidateRejectsMissingEncryptionKey(t *testing.T) {
	cfg := config.Default()
	cfg.Encryption.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestSegmentPathLayout(t *testing.T) {
	sys := config.SystemConfig{Path: "/data"}
	require.Equal(t, "/data/state/log", sys.StateLogPath())
	require.Equal(t, "/data/streams/1/topics/2/partitions/3", sys.PartitionPath(1, 2, 3))
	require.Equal(t, "/data/streams/1/topics/2/partitions/3/00000000000000000042.log", sys.SegmentLogPath(1, 2, 3, 42))
}

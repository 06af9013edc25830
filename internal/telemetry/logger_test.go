package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ridgeline/flowvault/internal/telemetry"
)

func TestNewLoggerAppliesRequestedLevel(t *testing.T) {
	logger, err := telemetry.NewLogger("warn")
	require.NoError(t, err)
	require.NotNil(t, logger)

	require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestNewLoggerFallsBackToInfoOnUnrecognizedLevel(t *testing.T) {
	logger, err := telemetry.NewLogger("not-a-real-level")
	require.NoError(t, err)

	require.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLoggerDebugEnablesEverything(t *testing.T) {
	logger, err := telemetry.NewLogger("debug")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/iliyamo/class-seat-booking/internal/observability"
)

func TestNewLogger_Levels(t *testing.T) {
	logger, err := observability.NewLogger("production", "warn", "booking")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = observability.NewLogger("dev", "bogus", "")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestSetupTracing_WithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := observability.SetupTracing(context.Background(), "", "booking")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDriverNeedsOnlyJWTSecret(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CALL_TIMEOUT", "250ms")
	t.Setenv("EMBEDDED_WORKER", "yes")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.CallTimeout)
	assert.True(t, cfg.EmbeddedWorker)
	assert.Equal(t, "booking_requests", cfg.Queue)
	assert.Equal(t, 10, cfg.Prefetch)
}

func TestLoad_ReportsEveryMissingVariable(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mysql")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "DB_USER", "DB_HOST", "DB_NAME"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestLoadRateLimitConfig_Shorthands(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadCacheConfig_Methods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")

	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
}

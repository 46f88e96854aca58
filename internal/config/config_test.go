package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/matching-service/internal/config"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("IN_MEMORY", "false")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_RequiresRedisURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/jobmate")
	t.Setenv("REDIS_URL", "")
	t.Setenv("IN_MEMORY", "false")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_URL")
}

func TestLoad_InMemoryDefaults(t *testing.T) {
	t.Setenv("IN_MEMORY", "true")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.True(t, cfg.Async)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, "@every 15m", cfg.Scheduler)
	assert.Equal(t, 100, cfg.PageMaxSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("IN_MEMORY", "true")
	t.Setenv("MATCH_ASYNC", "false")
	t.Setenv("MATCH_WORKERS", "2")
	t.Setenv("MATCH_RUN_TIMEOUT", "90s")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.False(t, cfg.Async)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.RunTimeout)
}

func TestLoad_RejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("IN_MEMORY", "true")
	t.Setenv("MATCH_WORKERS", "0")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MATCH_WORKERS")
}

func TestLoad_OverrideSkipsBackingServices(t *testing.T) {
	t.Setenv("IN_MEMORY", "false")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := config.Load("", config.WithOverride("IN_MEMORY", true))
	require.NoError(t, err)
	assert.True(t, cfg.InMemory)
}

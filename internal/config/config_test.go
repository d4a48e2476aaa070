package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "scout.db", cfg.Store.Path)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 60*time.Second, cfg.Browser.NavTimeout())
	assert.Equal(t, 3, cfg.Dispatch.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.JobTimeout())
	assert.Equal(t, time.Second, cfg.Dispatch.BatchDelay())
	assert.InDelta(t, 50.0, cfg.Reconcile.AdjacencyM, 0.01)
	assert.InDelta(t, 0.85, cfg.Reconcile.ConfidenceGate, 0.001)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SCOUT_STORE_DRIVER", "postgres")
	t.Setenv("SCOUT_DISPATCH_CONCURRENCY", "5")
	t.Setenv("SCOUT_ANTHROPIC_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 5, cfg.Dispatch.Concurrency)
	assert.Equal(t, "sk-test", cfg.Anthropic.Key)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

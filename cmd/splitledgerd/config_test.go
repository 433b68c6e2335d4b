package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/splitledger", cfg.Server.BasePath)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.Ledger.StoreTimeout)
	assert.Equal(t, 30*time.Second, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, 3, cfg.Ledger.RefreshRetries)
	assert.Empty(t, cfg.Redis.Address)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDRESS", "localhost:6379")
	t.Setenv("REDIS_LOCK_TTL", "3s")
	t.Setenv("LEDGER_STORE_TIMEOUT", "250ms")
	t.Setenv("LEDGER_ASYNC_REFRESH", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, 3*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.StoreTimeout)
	assert.True(t, cfg.Ledger.AsyncRefresh)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero store timeout", map[string]string{"LEDGER_STORE_TIMEOUT": "0s"}},
		{"negative reconcile", map[string]string{"LEDGER_RECONCILE_INTERVAL": "-1s"}},
		{"relative metrics path", map[string]string{"SERVER_METRICS_PATH": "metrics"}},
		{"async without queue", map[string]string{"LEDGER_ASYNC_REFRESH": "true", "LEDGER_REFRESH_QUEUE_SIZE": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

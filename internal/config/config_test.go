package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "STORE_BACKEND", "MYSQL_DSN", "REDIS_ADDR",
	"LOCK_BACKEND", "LOCK_EXPIRY", "EVENT_BACKEND", "EVENT_CHANNEL",
	"EVENT_QUEUE_SIZE", "EVENT_WORKERS", "CATALOG_FILE", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key; Load treats empty values as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, LockLocal, cfg.LockBackend)
	assert.Equal(t, EventsLog, cfg.EventBackend)
	assert.Equal(t, "delivery-events", cfg.EventChannel)
	assert.Equal(t, 1024, cfg.EventQueueSize)
	assert.Equal(t, 4, cfg.EventWorkers)
	assert.Equal(t, 10*time.Second, cfg.LockExpiry)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "MySQL")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("EVENT_WORKERS", "8")
	t.Setenv("LOCK_EXPIRY", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMySQL, cfg.StoreBackend)
	assert.Equal(t, LockRedis, cfg.LockBackend)
	assert.Equal(t, 8, cfg.EventWorkers)
	assert.Equal(t, 3*time.Second, cfg.LockExpiry)
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("HTTP_ADDR=:9090\nEVENT_BACKEND=redis\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, EventsRedis, cfg.EventBackend)
	assert.Equal(t, "warn", cfg.LogLevel, "process env wins over the file")
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"STORE_BACKEND", "mongo"},
		{"LOCK_BACKEND", "zookeeper"},
		{"EVENT_BACKEND", "kafka"},
		{"LOG_FORMAT", "xml"},
		{"EVENT_QUEUE_SIZE", "lots"},
		{"EVENT_QUEUE_SIZE", "0"},
		{"EVENT_WORKERS", "-1"},
		{"LOCK_EXPIRY", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

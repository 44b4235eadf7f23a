package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendPostgres, cfg.ObjectStoreBackend)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.EqualValues(t, 1<<20, cfg.KVMaxValueSize)
}

func TestFromEnv_Overrides(t *testing.T) {
	withEnv(t, map[string]string{
		"HTTP_ADDR":          ":9090",
		"KV_MAX_VALUE_SIZE":  "2048",
		"CLEANUP_INTERVAL":   "5m",
		"WATCH_WORKER_COUNT": "4",
	}, func() {
		cfg := FromEnv()
		assert.Equal(t, ":9090", cfg.HTTPAddr)
		assert.EqualValues(t, 2048, cfg.KVMaxValueSize)
		assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
		assert.EqualValues(t, 4, cfg.WatchWorkerCount)
	})
}

func TestFromEnv_InvalidOverrideFallsBackToDefault(t *testing.T) {
	withEnv(t, map[string]string{"KV_MAX_VALUE_SIZE": "not-a-number"}, func() {
		cfg := FromEnv()
		assert.EqualValues(t, 1<<20, cfg.KVMaxValueSize)
	})
}

func TestValidate_RejectsUnimplementedBackend(t *testing.T) {
	cfg := FromEnv()
	cfg.ObjectStoreBackend = BackendS3
	require.Error(t, cfg.Validate())
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	cfg := FromEnv()
	cfg.KVMaxValueSize = 0
	require.Error(t, cfg.Validate())

	cfg = FromEnv()
	cfg.ObjectStoreChunkSize = -1
	require.Error(t, cfg.Validate())
}

func TestDSN_RendersLibpqStyleConnectionString(t *testing.T) {
	cfg := Config{DBUsername: "storegate", DBPassword: "secret", DBHost: "db", DBPort: 5432, DBName: "storegate"}
	assert.Equal(t, "postgres://storegate:secret@db:5432/storegate?sslmode=disable", cfg.DSN())
}

func TestSweeperDSN_UsesTheSweeperRoleNotTheAppRole(t *testing.T) {
	cfg := Config{
		DBUsername: "storegate", DBPassword: "secret",
		DBSweeperUsername: "storegate_sweeper", DBSweeperPassword: "sweeper-secret",
		DBHost: "db", DBPort: 5432, DBName: "storegate",
	}
	assert.Equal(t, "postgres://storegate_sweeper:sweeper-secret@db:5432/storegate?sslmode=disable", cfg.SweeperDSN())
}

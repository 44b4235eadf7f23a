// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the object storage backend implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendS3       Backend = "s3"
)

type Config struct {
	HTTPAddr string
	LogLevel string
	LogFormat string

	DBHost     string
	DBPort     int
	DBName     string
	DBUsername string
	DBPassword string
	DBPoolSize int

	// DBSweeperUsername/DBSweeperPassword authenticate the expiry sweeper's
	// connection. That role must carry BYPASSRLS: the sweep runs across
	// every tenant in one pass rather than through the per-request
	// tenant-bound session the app role's RLS policies expect. This is
	// never the app role itself (DBUsername), which per the row-level
	// security policies in migrations/0001_init.sql is expected to be
	// FORCE-restricted even for its own rows outside a bound tenant
	// session.
	DBSweeperUsername string
	DBSweeperPassword string

	KVMaxValueSize   int64
	KVMaxHistorySize int

	ObjectStoreChunkSize     int64
	ObjectStoreMaxObjectSize int64
	ObjectStoreBackend       Backend

	CleanupInterval time.Duration

	WatchQueueSize   int
	WatchWorkerCount int
}

func FromEnv() Config {
	return Config{
		HTTPAddr:  envDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envDefault("LOG_LEVEL", "info"),
		LogFormat: envDefault("LOG_FORMAT", "console"),

		DBHost:     envDefault("DB_HOST", "localhost"),
		DBPort:     envIntDefault("DB_PORT", 5432),
		DBName:     envDefault("DB_NAME", "storegate"),
		DBUsername: envDefault("DB_USERNAME", "storegate"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBPoolSize: envIntDefault("DB_POOL_SIZE", 10),

		DBSweeperUsername: envDefault("DB_SWEEPER_USERNAME", "storegate_sweeper"),
		DBSweeperPassword: os.Getenv("DB_SWEEPER_PASSWORD"),

		KVMaxValueSize:   envInt64Default("KV_MAX_VALUE_SIZE", 1<<20),
		KVMaxHistorySize: envIntDefault("KV_MAX_HISTORY_SIZE", 64),

		ObjectStoreChunkSize:     envInt64Default("OBJECTSTORE_CHUNK_SIZE", 1<<20),
		ObjectStoreMaxObjectSize: envInt64Default("OBJECTSTORE_MAX_OBJECT_SIZE", 5<<30),
		ObjectStoreBackend:       Backend(envDefault("OBJECTSTORE_BACKEND", string(BackendPostgres))),

		CleanupInterval: envDurationDefault("CLEANUP_INTERVAL", time.Hour),

		WatchQueueSize:   envIntDefault("WATCH_QUEUE_SIZE", 64),
		WatchWorkerCount: envIntDefault("WATCH_WORKER_COUNT", 0),
	}
}

// DSN renders the libpq-style connection string pgx expects.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// SweeperDSN renders the connection string for the expiry sweeper's
// maintenance role (see DBSweeperUsername), same host/port/database as
// DSN but a different, BYPASSRLS-carrying role.
func (c Config) SweeperDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBSweeperUsername, c.DBSweeperPassword, c.DBHost, c.DBPort, c.DBName)
}

// Validate rejects configurations this binary cannot serve.
func (c Config) Validate() error {
	if c.ObjectStoreBackend != BackendPostgres {
		return fmt.Errorf("objectstore backend %q is not implemented", c.ObjectStoreBackend)
	}
	if c.KVMaxValueSize <= 0 {
		return fmt.Errorf("KV_MAX_VALUE_SIZE must be positive")
	}
	if c.ObjectStoreChunkSize <= 0 {
		return fmt.Errorf("OBJECTSTORE_CHUNK_SIZE must be positive")
	}
	return nil
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envInt64Default(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

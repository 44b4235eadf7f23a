// Package db implements the tenant-scoped PostgreSQL persistence layer
// shared by the KV engine, the object chunk pipeline, and the watch
// fan-out's replay path.
package db

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"storegate/internal/config"
	"storegate/internal/log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store owns the connection pool shared by every repository.
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(ctx context.Context, cfg config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.DBPoolSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// NewSweeperPool opens a small connection pool for the expiry sweeper,
// authenticated via cfg.SweeperDSN as a maintenance role rather than the
// per-request application role: the sweep runs across every tenant in a
// single pass, so it cannot go through the tenant-bound RLS policy every
// other write path relies on (spec §4.6). It fails fast if that role does
// not actually carry BYPASSRLS, rather than silently sweeping nothing.
func NewSweeperPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.SweeperDSN())
	if err != nil {
		return nil, fmt.Errorf("parse sweeper dsn: %w", err)
	}
	poolCfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect sweeper pool: %w", err)
	}
	if err := verifyBypassRLS(ctx, pool, cfg.DBSweeperUsername); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func verifyBypassRLS(ctx context.Context, pool *pgxpool.Pool, username string) error {
	var bypass bool
	// A superuser bypasses row-level security regardless of the explicit
	// BYPASSRLS attribute, so either satisfies the precondition.
	if err := pool.QueryRow(ctx, `SELECT rolsuper OR rolbypassrls FROM pg_roles WHERE rolname = current_user`).Scan(&bypass); err != nil {
		return fmt.Errorf("check sweeper role bypassrls: %w", err)
	}
	if !bypass {
		return fmt.Errorf("sweeper role %q lacks BYPASSRLS: the expiry sweep is not tenant-scoped and must see every tenant's rows directly (ALTER ROLE %s BYPASSRLS)", username, username)
	}
	return nil
}

func (s *Store) Close() {
	if s == nil || s.Pool == nil {
		return
	}
	s.Pool.Close()
}

// Migrate applies every embedded migration file in lexical order. Each
// statement is idempotent (IF NOT EXISTS / OR REPLACE), so re-running on
// an already-migrated database is a no-op.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		payload, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.Pool.Exec(ctx, string(payload)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("applied migration")
	}
	return nil
}

// NewListenerConn opens a connection outside the pool for the watch
// fan-out's dedicated LISTEN loop (spec §4.5: one long-lived connection,
// never borrowed from the pool so it can block in WaitForNotification).
func NewListenerConn(ctx context.Context, dsn string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open listener connection: %w", err)
	}
	return conn, nil
}

// WithTenantTx runs fn inside a transaction whose session has been bound to
// tenant via set_config (spec §4.1). The binder is the first statement
// executed so every later statement on this transaction sees the setting,
// and every row-level security policy keyed on it applies transparently.
func (s *Store) WithTenantTx(ctx context.Context, tenant string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", tenant); err != nil {
		return fmt.Errorf("bind tenant session: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AcquireForTenant hands back a pooled connection whose session is bound to
// tenant for a read sequence that does not need transactional isolation
// (e.g. a multi-query GET). The caller must Release the connection.
func (s *Store) AcquireForTenant(ctx context.Context, tenant string) (*pgxpool.Conn, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "SELECT set_config('app.current_tenant', $1, false)", tenant); err != nil {
		conn.Release()
		return nil, fmt.Errorf("bind tenant session: %w", err)
	}
	return conn, nil
}

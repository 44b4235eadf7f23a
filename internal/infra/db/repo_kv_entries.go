package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storegate/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type KVEntryRepo struct {
	Store *Store
}

func NewKVEntryRepo(store *Store) *KVEntryRepo {
	return &KVEntryRepo{Store: store}
}

// nextRevision advances the per-(bucket,key) revision sequence and returns
// the new value. The upsert's row lock is what serializes concurrent Puts
// against the same key into a strict revision order (spec §4.2).
func nextRevision(ctx context.Context, tx pgx.Tx, bucketID, key string) (int64, error) {
	row := tx.QueryRow(ctx, `
INSERT INTO kv_revision_sequences (bucket_id, key, current_revision)
VALUES ($1, $2, 1)
ON CONFLICT (bucket_id, key)
DO UPDATE SET current_revision = kv_revision_sequences.current_revision + 1
RETURNING current_revision`, bucketID, key)
	var rev int64
	if err := row.Scan(&rev); err != nil {
		return 0, fmt.Errorf("advance revision sequence: %w", err)
	}
	return rev, nil
}

// currentRevision reads the latest non-purged revision for a key without
// advancing the sequence, used by Get. (Put's CAS check reads
// MAX(revision) with its own query.)
func currentRevision(ctx context.Context, tx pgx.Tx, bucketID, key string) (domain.KVEntry, error) {
	row := tx.QueryRow(ctx, `
SELECT id, bucket_id, tenant, key, value, revision, operation, created_at, expires_at
FROM kv_entries
WHERE bucket_id = $1 AND key = $2
ORDER BY revision DESC
LIMIT 1`, bucketID, key)
	return scanKVEntry(row)
}

// Put appends a new revision. When req.ExpectedRevision is set, the append
// only happens if the current max revision in kv_entries matches
// (optimistic CAS); otherwise domain.ErrCASConflict is returned and nothing
// is written. The sequence row lock is taken first (nextRevision), before
// the CAS comparison is read, so the two are atomic: no concurrent Put can
// insert a row for this key between the comparison and the insert below,
// since any such Put would itself block on the same row lock first.
//
// The comparison reads MAX(revision) from kv_entries directly rather than
// deriving it from the sequence counter (rev-1): the two diverge after
// Purge, which empties kv_entries for a key but leaves the sequence
// counter untouched, and expected_revision=0 against a purged (i.e. now
// nonexistent) key must still succeed.
func (r *KVEntryRepo) Put(ctx context.Context, tenant string, bucketID string, req domain.PutRequest, op domain.KVOperation) (domain.PutResult, error) {
	var result domain.PutResult
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rev, err := nextRevision(ctx, tx, bucketID, req.Key)
		if err != nil {
			return err
		}

		if req.ExpectedRevision != nil {
			var maxRevision *int64
			if err := tx.QueryRow(ctx, `
SELECT MAX(revision) FROM kv_entries WHERE bucket_id = $1 AND key = $2`, bucketID, req.Key).Scan(&maxRevision); err != nil {
				return fmt.Errorf("read current revision: %w", err)
			}
			var current int64
			if maxRevision != nil {
				current = *maxRevision
			}
			if current != *req.ExpectedRevision {
				return domain.ErrCASConflict
			}
		}

		var expiresAt *time.Time
		if req.TTLSeconds != nil && *req.TTLSeconds > 0 {
			t := time.Now().UTC().Add(time.Duration(*req.TTLSeconds) * time.Second)
			expiresAt = &t
		}

		row := tx.QueryRow(ctx, `
INSERT INTO kv_entries (bucket_id, tenant, key, value, revision, operation, expires_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
RETURNING created_at`,
			bucketID, tenant, req.Key, req.Value, rev, string(op), expiresAt)
		var createdAt time.Time
		if err := row.Scan(&createdAt); err != nil {
			return fmt.Errorf("insert kv entry: %w", err)
		}

		if err := trimHistory(ctx, tx, bucketID, req.Key, req.MaxHistoryOverride); err != nil {
			return err
		}

		result = domain.PutResult{Revision: rev, CreatedAt: createdAt, ExpiresAt: expiresAt}
		return nil
	})
	return result, err
}

// trimHistory deletes revisions older than the most recent maxHistory
// entries for a key, per bucket (or override) retention policy.
func trimHistory(ctx context.Context, tx pgx.Tx, bucketID, key string, override *int) error {
	maxHistory := 64
	if override != nil && *override > 0 {
		maxHistory = *override
	} else {
		row := tx.QueryRow(ctx, `SELECT max_history_per_key FROM kv_buckets WHERE id = $1`, bucketID)
		var fromBucket int
		if err := row.Scan(&fromBucket); err == nil && fromBucket > 0 {
			maxHistory = fromBucket
		}
	}
	_, err := tx.Exec(ctx, `
DELETE FROM kv_entries
WHERE bucket_id = $1 AND key = $2 AND revision <= (
    SELECT COALESCE(MAX(revision), 0) - $3
    FROM kv_entries WHERE bucket_id = $1 AND key = $2
)`, bucketID, key, maxHistory)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	return nil
}

// Get returns the current live value for a key, or domain.ErrNotFound if
// the key has never existed, was purged, is tombstoned, or has expired.
func (r *KVEntryRepo) Get(ctx context.Context, tenant, bucketID, key string) (domain.KVEntry, error) {
	var out domain.KVEntry
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		entry, err := currentRevision(ctx, tx, bucketID, key)
		if err != nil {
			return err
		}
		if entry.IsTombstone() || entry.IsExpired(time.Now().UTC()) {
			return domain.ErrNotFound
		}
		out = entry
		return nil
	})
	return out, err
}

// GetRevision returns a specific historical revision, even if superseded.
func (r *KVEntryRepo) GetRevision(ctx context.Context, tenant, bucketID, key string, revision int64) (domain.KVEntry, error) {
	var out domain.KVEntry
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
SELECT id, bucket_id, tenant, key, value, revision, operation, created_at, expires_at
FROM kv_entries WHERE bucket_id = $1 AND key = $2 AND revision = $3`, bucketID, key, revision)
		entry, err := scanKVEntry(row)
		if err != nil {
			return err
		}
		out = entry
		return nil
	})
	return out, err
}

// History returns every retained revision for key, newest first.
func (r *KVEntryRepo) History(ctx context.Context, tenant, bucketID, key string) ([]domain.KVEntry, error) {
	var out []domain.KVEntry
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, bucket_id, tenant, key, value, revision, operation, created_at, expires_at
FROM kv_entries WHERE bucket_id = $1 AND key = $2 ORDER BY revision DESC`, bucketID, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			entry, err := scanKVEntry(rows)
			if err != nil {
				return err
			}
			out = append(out, entry)
		}
		return rows.Err()
	})
	return out, err
}

// Delete appends a tombstone revision. Like Put, it honors an optional CAS
// check and preserves history (spec §5: history is preserved on delete).
func (r *KVEntryRepo) Delete(ctx context.Context, tenant, bucketID, key string, expectedRevision *int64) (domain.PutResult, error) {
	req := domain.PutRequest{Key: key, ExpectedRevision: expectedRevision}
	return r.Put(ctx, tenant, bucketID, req, domain.KVOpDelete)
}

// Purge hard-removes every row for (bucket, key), including tombstones,
// and returns the number of revisions removed. The per-key revision
// sequence itself is left untouched, so a later Put continues from
// prior_max + 1 rather than restarting at 1 (spec §4.3).
func (r *KVEntryRepo) Purge(ctx context.Context, tenant, bucketID, key string) (int64, error) {
	var count int64
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM kv_entries WHERE bucket_id = $1 AND key = $2`, bucketID, key)
		if err != nil {
			return fmt.Errorf("purge history: %w", err)
		}
		count = tag.RowsAffected()
		return nil
	})
	return count, err
}

// ListKeys returns the set of live (non-tombstoned, non-expired) keys in a
// bucket, optionally filtered by prefix.
func (r *KVEntryRepo) ListKeys(ctx context.Context, tenant, bucketID, prefix string) ([]string, error) {
	var out []string
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT DISTINCT ON (key) key, operation, expires_at
FROM kv_entries
WHERE bucket_id = $1 AND key LIKE $2 || '%'
ORDER BY key, revision DESC`, bucketID, prefix)
		if err != nil {
			return err
		}
		defer rows.Close()
		now := time.Now().UTC()
		for rows.Next() {
			var key, op string
			var expiresAt *time.Time
			if err := rows.Scan(&key, &op, &expiresAt); err != nil {
				return fmt.Errorf("scan key: %w", err)
			}
			if op == string(domain.KVOpDelete) || op == string(domain.KVOpPurge) {
				continue
			}
			if expiresAt != nil && !expiresAt.After(now) {
				continue
			}
			out = append(out, key)
		}
		return rows.Err()
	})
	return out, err
}

// dueEntry identifies one key whose latest revision has expired.
type dueEntry struct {
	bucketID string
	key      string
}

// ExpireDue hard-deletes every revision of every key whose latest PUT
// revision has expired, across every tenant. This is deliberately unlike
// Delete, which tombstones and preserves history: once the sweep has run,
// neither Get nor History shows the key again, matching the distinction
// the lifecycle draws between a client DELETE and a TTL sweep.
//
// pool must be authenticated as a role carrying BYPASSRLS (see
// NewSweeperPool): the sweep is not bound to any single tenant's session,
// so it has to see every tenant's expired rows directly instead of
// through the per-session RLS policy every other write path relies on.
func (r *KVEntryRepo) ExpireDue(ctx context.Context, pool *pgxpool.Pool, now time.Time) (int64, error) {
	rows, err := pool.Query(ctx, `
SELECT DISTINCT ON (bucket_id, key) bucket_id, key
FROM kv_entries
WHERE expires_at IS NOT NULL AND expires_at <= $1
ORDER BY bucket_id, key, revision DESC`, now)
	if err != nil {
		return 0, fmt.Errorf("scan due entries: %w", err)
	}
	var due []dueEntry
	for rows.Next() {
		var d dueEntry
		if err := rows.Scan(&d.bucketID, &d.key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan due entry: %w", err)
		}
		due = append(due, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var expired int64
	for _, d := range due {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return expired, fmt.Errorf("begin expiry tx: %w", err)
		}

		// Lock the revision sequence row so a concurrent Put/CAS against
		// this key can't race the re-check below.
		if _, err := tx.Exec(ctx, `
SELECT current_revision FROM kv_revision_sequences WHERE bucket_id = $1 AND key = $2 FOR UPDATE`, d.bucketID, d.key); err != nil {
			_ = tx.Rollback(ctx)
			return expired, fmt.Errorf("lock revision sequence: %w", err)
		}

		// Re-check under that lock: the latest revision may have been
		// overwritten or deleted since the scan above.
		var latestRevision int64
		var latestOp string
		var latestExpiresAt *time.Time
		err = tx.QueryRow(ctx, `
SELECT revision, operation, expires_at FROM kv_entries
WHERE bucket_id = $1 AND key = $2 ORDER BY revision DESC LIMIT 1`, d.bucketID, d.key).Scan(&latestRevision, &latestOp, &latestExpiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			_ = tx.Rollback(ctx)
			continue
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return expired, fmt.Errorf("reread latest revision: %w", err)
		}
		if latestOp != string(domain.KVOpPut) || latestExpiresAt == nil || latestExpiresAt.After(now) {
			_ = tx.Rollback(ctx)
			continue
		}

		if _, err := tx.Exec(ctx, `
DELETE FROM kv_entries WHERE bucket_id = $1 AND key = $2 AND revision <= $3`, d.bucketID, d.key, latestRevision); err != nil {
			_ = tx.Rollback(ctx)
			return expired, fmt.Errorf("delete expired entries: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return expired, fmt.Errorf("commit expiry tx: %w", err)
		}
		expired++
	}
	return expired, nil
}

func scanKVEntry(row rowScanner) (domain.KVEntry, error) {
	var e domain.KVEntry
	var tenant *string
	var op string
	err := row.Scan(&e.ID, &e.BucketID, &tenant, &e.Key, &e.Value, &e.Revision, &op, &e.CreatedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.KVEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.KVEntry{}, fmt.Errorf("scan kv entry: %w", err)
	}
	if tenant != nil {
		e.Tenant = *tenant
	}
	e.Operation = domain.KVOperation(op)
	return e, nil
}

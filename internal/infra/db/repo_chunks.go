package db

import (
	"context"
	"errors"
	"fmt"

	"storegate/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChunkRepo stores and retrieves content-addressed chunks shared across
// every tenant and bucket (spec §3: dedup is global, access is gated
// through metadata ownership rather than row-level security here).
type ChunkRepo struct {
	Pool *pgxpool.Pool
}

func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{Pool: pool}
}

// PutIfAbsent writes the chunk if no row with this digest exists yet and
// reports whether it actually inserted a new row. The ON CONFLICT DO
// NOTHING is the cross-process dedup guarantee; an in-process
// singleflight.Group in front of this call collapses duplicate concurrent
// writes of the same digest before they reach the database at all.
func (r *ChunkRepo) PutIfAbsent(ctx context.Context, digest string, data []byte) (bool, error) {
	tag, err := r.Pool.Exec(ctx, `
INSERT INTO obj_shared_chunks (digest, data, size)
VALUES ($1, $2, $3)
ON CONFLICT (digest) DO NOTHING`, digest, data, len(data))
	if err != nil {
		return false, fmt.Errorf("store chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ChunkRepo) Get(ctx context.Context, digest string) (domain.SharedChunk, error) {
	row := r.Pool.QueryRow(ctx, `SELECT digest, data, size, created_at FROM obj_shared_chunks WHERE digest = $1`, digest)
	var c domain.SharedChunk
	err := row.Scan(&c.Digest, &c.Data, &c.Size, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SharedChunk{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SharedChunk{}, fmt.Errorf("read chunk: %w", err)
	}
	return c, nil
}

func (r *ChunkRepo) Exists(ctx context.Context, digest string) (bool, error) {
	row := r.Pool.QueryRow(ctx, `SELECT 1 FROM obj_shared_chunks WHERE digest = $1`, digest)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check chunk existence: %w", err)
	}
	return true, nil
}

// OrphanDigests returns every shared chunk digest with no remaining
// metadata link, for the read-only diagnostic endpoint (spec §5 resolved
// open question: storegate reports orphans but never garbage-collects
// them automatically).
func (r *ChunkRepo) OrphanDigests(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.Pool.Query(ctx, `
SELECT c.digest FROM obj_shared_chunks c
LEFT JOIN obj_metadata_chunks l ON l.chunk_digest = c.digest
WHERE l.id IS NULL
ORDER BY c.created_at
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orphan chunks: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var digest string
		if err := rows.Scan(&digest); err != nil {
			return nil, fmt.Errorf("scan orphan digest: %w", err)
		}
		out = append(out, digest)
	}
	return out, rows.Err()
}

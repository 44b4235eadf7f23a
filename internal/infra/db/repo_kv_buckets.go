package db

import (
	"context"
	"errors"
	"fmt"

	"storegate/internal/domain"

	"github.com/jackc/pgx/v5"
)

type KVBucketRepo struct {
	Store *Store
}

func NewKVBucketRepo(store *Store) *KVBucketRepo {
	return &KVBucketRepo{Store: store}
}

func (r *KVBucketRepo) Create(ctx context.Context, tenant string, bucket domain.KVBucket) (domain.KVBucket, error) {
	var out domain.KVBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO kv_buckets (tenant, name, description, max_value_size, max_history_per_key, ttl_seconds)
VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
ON CONFLICT (tenant, name) DO NOTHING
RETURNING id, tenant, name, description, max_value_size, max_history_per_key, ttl_seconds, created_at, updated_at`,
			tenant, bucket.Name, bucket.Description, bucket.MaxValueSize, bucket.MaxHistoryPerKey, bucket.TTLSeconds)
		scanned, err := scanKVBucket(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrConflict
		}
		if err != nil {
			return err
		}
		out = scanned
		return nil
	})
	return out, err
}

func (r *KVBucketRepo) GetByName(ctx context.Context, tenant, name string) (domain.KVBucket, error) {
	var out domain.KVBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
SELECT id, tenant, name, description, max_value_size, max_history_per_key, ttl_seconds, created_at, updated_at
FROM kv_buckets WHERE name = $1`, name)
		scanned, err := scanKVBucket(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		out = scanned
		return nil
	})
	return out, err
}

func (r *KVBucketRepo) Delete(ctx context.Context, tenant, name string) error {
	return r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM kv_buckets WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *KVBucketRepo) List(ctx context.Context, tenant string) ([]domain.KVBucket, error) {
	var out []domain.KVBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, tenant, name, description, max_value_size, max_history_per_key, ttl_seconds, created_at, updated_at
FROM kv_buckets ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			b, err := scanKVBucket(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKVBucket(row rowScanner) (domain.KVBucket, error) {
	var b domain.KVBucket
	var tenant *string
	err := row.Scan(&b.ID, &tenant, &b.Name, &b.Description, &b.MaxValueSize, &b.MaxHistoryPerKey, &b.TTLSeconds, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.KVBucket{}, fmt.Errorf("scan kv bucket: %w", err)
	}
	if tenant != nil {
		b.Tenant = *tenant
	}
	return b, nil
}

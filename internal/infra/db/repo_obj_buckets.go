package db

import (
	"context"
	"errors"
	"fmt"

	"storegate/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ObjBucketRepo struct {
	Store *Store
}

func NewObjBucketRepo(store *Store) *ObjBucketRepo {
	return &ObjBucketRepo{Store: store}
}

func (r *ObjBucketRepo) Create(ctx context.Context, tenant string, bucket domain.ObjBucket) (domain.ObjBucket, error) {
	var out domain.ObjBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO obj_buckets (tenant, name, chunk_size, max_object_size)
VALUES (NULLIF($1, ''), $2, $3, $4)
ON CONFLICT (tenant, name) DO NOTHING
RETURNING id, tenant, name, chunk_size, max_object_size, created_at, updated_at`,
			tenant, bucket.Name, bucket.ChunkSize, bucket.MaxObjectSize)
		scanned, err := scanObjBucket(row)
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

func (r *ObjBucketRepo) GetByName(ctx context.Context, tenant, name string) (domain.ObjBucket, error) {
	var out domain.ObjBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
SELECT id, tenant, name, chunk_size, max_object_size, created_at, updated_at
FROM obj_buckets WHERE name = $1`, name)
		scanned, err := scanObjBucket(row)
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

func (r *ObjBucketRepo) Delete(ctx context.Context, tenant, name string) error {
	return r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM obj_buckets WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *ObjBucketRepo) List(ctx context.Context, tenant string) ([]domain.ObjBucket, error) {
	var out []domain.ObjBucket
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, tenant, name, chunk_size, max_object_size, created_at, updated_at
FROM obj_buckets ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			b, err := scanObjBucket(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	return out, err
}

func scanObjBucket(row rowScanner) (domain.ObjBucket, error) {
	var b domain.ObjBucket
	var tenant *string
	err := row.Scan(&b.ID, &tenant, &b.Name, &b.ChunkSize, &b.MaxObjectSize, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return domain.ObjBucket{}, fmt.Errorf("scan object bucket: %w", err)
	}
	if tenant != nil {
		b.Tenant = *tenant
	}
	return b, nil
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storegate/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ObjMetadataRepo struct {
	Store *Store
}

func NewObjMetadataRepo(store *Store) *ObjMetadataRepo {
	return &ObjMetadataRepo{Store: store}
}

// BeginUpload creates a fresh UPLOADING metadata row with a new id.
// Finalize transitions it to COMPLETED once every chunk has been written
// and the whole-object digest computed (spec §4.4's three-phase pipeline).
//
// A replacement of an existing COMPLETED (or FAILED) object is handled by
// deleting that row first, in the same transaction, before the INSERT;
// obj_metadata_chunks for the old row cascade-delete with it, so the new
// row starts from a genuinely clean slate instead of an id shared with
// whatever upload previously owned it. Two uploads racing for the same new
// name, or racing against an in-flight (still UPLOADING) upload, are left
// for the INSERT's (bucket_id, name) unique constraint to resolve: the
// loser's INSERT returns no row, which BeginUpload reports as ErrConflict.
func (r *ObjMetadataRepo) BeginUpload(ctx context.Context, tenant, bucketID, name, contentType, description string, headers map[string]string) (domain.ObjMetadata, error) {
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return domain.ObjMetadata{}, fmt.Errorf("encode headers: %w", err)
	}
	var out domain.ObjMetadata
	err = r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
DELETE FROM obj_metadata WHERE bucket_id = $1 AND name = $2 AND status != 'UPLOADING'`, bucketID, name); err != nil {
			return fmt.Errorf("clear prior object: %w", err)
		}

		row := tx.QueryRow(ctx, `
INSERT INTO obj_metadata (bucket_id, tenant, name, content_type, description, headers, status)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, 'UPLOADING')
ON CONFLICT (bucket_id, name) DO NOTHING
RETURNING id, bucket_id, tenant, name, size, chunk_count, digest, digest_algorithm, content_type, description, headers, status, created_at, updated_at`,
			bucketID, tenant, name, contentType, description, headerJSON)
		scanned, err := scanObjMetadata(row)
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

// Finalize marks an object COMPLETED with its resolved size/digest/chunk
// count, once every chunk has been linked.
func (r *ObjMetadataRepo) Finalize(ctx context.Context, tenant, metadataID string, size int64, chunkCount int, digest string) (domain.ObjMetadata, error) {
	var out domain.ObjMetadata
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
UPDATE obj_metadata SET size = $1, chunk_count = $2, digest = $3, status = 'COMPLETED', updated_at = now()
WHERE id = $4
RETURNING id, bucket_id, tenant, name, size, chunk_count, digest, digest_algorithm, content_type, description, headers, status, created_at, updated_at`,
			size, chunkCount, digest, metadataID)
		scanned, err := scanObjMetadata(row)
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

// MarkFailed transitions an in-progress upload to FAILED so a retried
// upload to the same name does not appear to succeed with stale chunks.
func (r *ObjMetadataRepo) MarkFailed(ctx context.Context, tenant, metadataID string) error {
	return r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE obj_metadata SET status = 'FAILED', updated_at = now() WHERE id = $1`, metadataID)
		return err
	})
}

func (r *ObjMetadataRepo) GetByName(ctx context.Context, tenant, bucketID, name string) (domain.ObjMetadata, error) {
	var out domain.ObjMetadata
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
SELECT id, bucket_id, tenant, name, size, chunk_count, digest, digest_algorithm, content_type, description, headers, status, created_at, updated_at
FROM obj_metadata WHERE bucket_id = $1 AND name = $2 AND status = 'COMPLETED'`, bucketID, name)
		scanned, err := scanObjMetadata(row)
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

func (r *ObjMetadataRepo) Delete(ctx context.Context, tenant, bucketID, name string) error {
	return r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM obj_metadata WHERE bucket_id = $1 AND name = $2`, bucketID, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (r *ObjMetadataRepo) List(ctx context.Context, tenant, bucketID, prefix string) ([]domain.ObjMetadata, error) {
	var out []domain.ObjMetadata
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id, bucket_id, tenant, name, size, chunk_count, digest, digest_algorithm, content_type, description, headers, status, created_at, updated_at
FROM obj_metadata WHERE bucket_id = $1 AND name LIKE $2 || '%' AND status = 'COMPLETED' ORDER BY name`, bucketID, prefix)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanObjMetadata(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

// LinkChunk records that chunkIndex of metadataID resolves to digest. The
// shared chunk row itself is written separately by ChunkRepo, keyed only
// by digest so identical bytes written by any tenant are stored once.
func (r *ObjMetadataRepo) LinkChunk(ctx context.Context, tenant, metadataID string, chunkIndex int, digest string) error {
	return r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO obj_metadata_chunks (metadata_id, chunk_index, chunk_digest)
VALUES ($1, $2, $3)
ON CONFLICT (metadata_id, chunk_index) DO UPDATE SET chunk_digest = EXCLUDED.chunk_digest`,
			metadataID, chunkIndex, digest)
		if err != nil {
			return fmt.Errorf("link chunk: %w", err)
		}
		return nil
	})
}

// ChunkDigests returns the digest sequence for a completed object, in
// chunk order, for range reads and digest re-verification.
func (r *ObjMetadataRepo) ChunkDigests(ctx context.Context, tenant, metadataID string) ([]string, error) {
	var out []string
	err := r.Store.WithTenantTx(ctx, tenant, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT chunk_digest FROM obj_metadata_chunks WHERE metadata_id = $1 ORDER BY chunk_index`, metadataID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var digest string
			if err := rows.Scan(&digest); err != nil {
				return fmt.Errorf("scan chunk digest: %w", err)
			}
			out = append(out, digest)
		}
		return rows.Err()
	})
	return out, err
}

func scanObjMetadata(row rowScanner) (domain.ObjMetadata, error) {
	var m domain.ObjMetadata
	var tenant *string
	var status string
	var headerJSON []byte
	err := row.Scan(&m.ID, &m.BucketID, &tenant, &m.Name, &m.Size, &m.ChunkCount, &m.Digest, &m.DigestAlgorithm,
		&m.ContentType, &m.Description, &headerJSON, &status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.ObjMetadata{}, fmt.Errorf("scan object metadata: %w", err)
	}
	if tenant != nil {
		m.Tenant = *tenant
	}
	m.Status = domain.ObjectStatus(status)
	if len(headerJSON) > 0 {
		if err := json.Unmarshal(headerJSON, &m.Headers); err != nil {
			return domain.ObjMetadata{}, fmt.Errorf("decode headers: %w", err)
		}
	}
	return m, nil
}

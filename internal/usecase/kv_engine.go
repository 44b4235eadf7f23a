// Package usecase implements the data/consistency core: the KV engine,
// the object chunk pipeline, and the expiry sweeper. Everything here is
// transport-agnostic — the HTTP and WebSocket adapters are the only
// callers.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"storegate/internal/domain"
	"storegate/internal/infra/db"
	"storegate/internal/metrics"
)

const defaultHistoryLimit = 64

// KVEngine implements Put/Get/Delete/Purge/History/CAS over revision
// indexed entry rows (spec §4.3).
type KVEngine struct {
	Buckets *db.KVBucketRepo
	Entries *db.KVEntryRepo
	Audit   *db.AuditRepo
}

func NewKVEngine(buckets *db.KVBucketRepo, entries *db.KVEntryRepo, audit *db.AuditRepo) *KVEngine {
	return &KVEngine{Buckets: buckets, Entries: entries, Audit: audit}
}

func (e *KVEngine) CreateBucket(ctx context.Context, tenant string, bucket domain.KVBucket) (domain.KVBucket, error) {
	if bucket.Name == "" || len(bucket.Name) > 255 {
		return domain.KVBucket{}, fmt.Errorf("%w: bucket name must be 1-255 characters", domain.ErrValidation)
	}
	if bucket.MaxValueSize <= 0 {
		bucket.MaxValueSize = 1 << 20
	}
	if bucket.MaxHistoryPerKey <= 0 {
		bucket.MaxHistoryPerKey = defaultHistoryLimit
	}
	return e.Buckets.Create(ctx, tenant, bucket)
}

func (e *KVEngine) GetBucket(ctx context.Context, tenant, name string) (domain.KVBucket, error) {
	return e.Buckets.GetByName(ctx, tenant, name)
}

func (e *KVEngine) ListBuckets(ctx context.Context, tenant string) ([]domain.KVBucket, error) {
	return e.Buckets.List(ctx, tenant)
}

func (e *KVEngine) DeleteBucket(ctx context.Context, tenant, name string) error {
	if err := e.Buckets.Delete(ctx, tenant, name); err != nil {
		return err
	}
	_ = e.Audit.Record(ctx, tenant, name, "", "bucket.delete", "", nil)
	return nil
}

// Put validates against the bucket's limits and resolves TTL (a
// request-level TTL overrides the bucket default; an explicit zero means
// no expiration) before delegating to the revision-sequenced append.
func (e *KVEngine) Put(ctx context.Context, tenant string, req domain.PutRequest) (domain.PutResult, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, req.Bucket)
	if err != nil {
		return domain.PutResult{}, err
	}
	if req.Key == "" || len(req.Key) > 2048 {
		return domain.PutResult{}, fmt.Errorf("%w: key must be 1-2048 characters", domain.ErrValidation)
	}
	if int64(len(req.Value)) > bucket.MaxValueSize {
		return domain.PutResult{}, fmt.Errorf("%w: value exceeds bucket max_value_size of %d bytes", domain.ErrValidation, bucket.MaxValueSize)
	}
	if req.TTLSeconds == nil {
		req.TTLSeconds = bucket.TTLSeconds
	}
	if req.MaxHistoryOverride == nil {
		req.MaxHistoryOverride = &bucket.MaxHistoryPerKey
	}

	result, err := e.Entries.Put(ctx, tenant, bucket.ID, req, domain.KVOpPut)
	if err != nil {
		metrics.KVOpsTotal.WithLabelValues("put", outcomeOf(err)).Inc()
		return domain.PutResult{}, err
	}
	metrics.KVOpsTotal.WithLabelValues("put", "ok").Inc()
	_ = e.Audit.Record(ctx, tenant, bucket.Name, req.Key, "kv.put", "", &result.Revision)
	return result, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrCASConflict):
		return "cas-conflict"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not-found"
	default:
		return "error"
	}
}

func (e *KVEngine) Get(ctx context.Context, tenant, bucketName, key string) (domain.KVEntry, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return domain.KVEntry{}, err
	}
	return e.Entries.Get(ctx, tenant, bucket.ID, key)
}

func (e *KVEngine) GetRevision(ctx context.Context, tenant, bucketName, key string, revision int64) (domain.KVEntry, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return domain.KVEntry{}, err
	}
	return e.Entries.GetRevision(ctx, tenant, bucket.ID, key, revision)
}

func (e *KVEngine) History(ctx context.Context, tenant, bucketName, key string, limit int) ([]domain.KVEntry, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return nil, err
	}
	history, err := e.Entries.History(ctx, tenant, bucket.ID, key)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = bucket.MaxHistoryPerKey
	}
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// Delete fails not-found if the key has never existed or is already
// tombstoned; otherwise it appends a tombstone revision.
func (e *KVEngine) Delete(ctx context.Context, tenant, bucketName, key string, expectedRevision *int64) (domain.PutResult, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return domain.PutResult{}, err
	}
	if _, err := e.Entries.Get(ctx, tenant, bucket.ID, key); err != nil {
		return domain.PutResult{}, err
	}
	result, err := e.Entries.Delete(ctx, tenant, bucket.ID, key, expectedRevision)
	if err != nil {
		return domain.PutResult{}, err
	}
	_ = e.Audit.Record(ctx, tenant, bucket.Name, key, "kv.delete", "", &result.Revision)
	return result, nil
}

func (e *KVEngine) Purge(ctx context.Context, tenant, bucketName, key string) (int64, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return 0, err
	}
	count, err := e.Entries.Purge(ctx, tenant, bucket.ID, key)
	if err != nil {
		return 0, err
	}
	_ = e.Audit.Record(ctx, tenant, bucket.Name, key, "kv.purge", "", nil)
	return count, nil
}

func (e *KVEngine) ListKeys(ctx context.Context, tenant, bucketName, prefix string) ([]string, error) {
	bucket, err := e.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return nil, err
	}
	return e.Entries.ListKeys(ctx, tenant, bucket.ID, prefix)
}

// CAS performs a compare-and-swap Put: it succeeds only if the key's
// current revision equals expectedRevision (0 meaning the key must not
// exist yet). The actual single-writer serialization happens inside
// KVEntryRepo.Put via the Revision Sequencer's row lock (spec §4.2); this
// method is a thin, named entry point for that same codepath.
func (e *KVEngine) CAS(ctx context.Context, tenant string, req domain.PutRequest) (domain.PutResult, error) {
	if req.ExpectedRevision == nil {
		zero := int64(0)
		req.ExpectedRevision = &zero
	}
	return e.Put(ctx, tenant, req)
}

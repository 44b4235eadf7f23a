package domain

import "time"

// KVOperation tags what a KVEntry row represents.
type KVOperation string

const (
	KVOpPut    KVOperation = "PUT"
	KVOpDelete KVOperation = "DELETE"
	KVOpPurge  KVOperation = "PURGE"
)

// KVBucket is a named, tenant-scoped namespace for KV entries.
type KVBucket struct {
	ID               string
	Tenant           string
	Name             string
	Description      string
	MaxValueSize     int64
	MaxHistoryPerKey int
	TTLSeconds       *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// KVEntry is one immutable revision of a key within a bucket.
type KVEntry struct {
	ID        string
	BucketID  string
	Tenant    string
	Key       string
	Value     []byte
	Revision  int64
	Operation KVOperation
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// IsTombstone reports whether this entry represents a logical delete.
func (e KVEntry) IsTombstone() bool {
	return e.Operation == KVOpDelete
}

// IsExpired reports whether this entry's TTL has elapsed as of now.
func (e KVEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !e.ExpiresAt.After(now)
}

// PutRequest is the input to the KV Put/CAS path.
type PutRequest struct {
	Bucket            string
	Key               string
	Value             []byte
	TTLSeconds        *int64
	ExpectedRevision  *int64 // nil => unconditional Put; non-nil => CAS
	MaxHistoryOverride *int
}

// PutResult is returned from Put/CAS.
type PutResult struct {
	Revision  int64
	CreatedAt time.Time
	ExpiresAt *time.Time
}

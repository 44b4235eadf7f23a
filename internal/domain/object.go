package domain

import "time"

// ObjectStatus tracks the three-phase upload lifecycle (spec §4.4).
type ObjectStatus string

const (
	ObjectStatusUploading ObjectStatus = "UPLOADING"
	ObjectStatusCompleted ObjectStatus = "COMPLETED"
	ObjectStatusFailed    ObjectStatus = "FAILED"
)

// ObjBucket is a named, tenant-scoped namespace for objects.
type ObjBucket struct {
	ID            string
	Tenant        string
	Name          string
	ChunkSize     int64
	MaxObjectSize int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ObjMetadata describes a stored object. Size/ChunkCount/Digest are only
// meaningful once Status == ObjectStatusCompleted.
type ObjMetadata struct {
	ID              string
	BucketID        string
	Tenant          string
	Name            string
	Size            int64
	ChunkCount      int
	Digest          string
	DigestAlgorithm string
	ContentType     string
	Description     string
	Headers         map[string]string
	Status          ObjectStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SharedChunk is a content-addressed, globally deduplicated chunk of bytes.
type SharedChunk struct {
	Digest    string
	Data      []byte
	Size      int
	CreatedAt time.Time
}

// MetadataChunkLink orders the chunks that compose one object.
type MetadataChunkLink struct {
	ID          string
	MetadataID  string
	ChunkIndex  int
	ChunkDigest string
}

// ByteRange is a validated, clamped read window into an object.
type ByteRange struct {
	Offset int64
	Length int64
}

// End returns the last byte index (inclusive) covered by the range.
func (r ByteRange) End() int64 {
	return r.Offset + r.Length - 1
}

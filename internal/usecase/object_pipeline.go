package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"storegate/internal/domain"
	"storegate/internal/infra/db"
	"storegate/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// ObjectPipeline implements the streaming, content-addressed upload and
// ranged-read path (spec §4.4). Chunk writes are bounded to chunk_size +
// one buffered chunk of memory regardless of object size.
type ObjectPipeline struct {
	Buckets  *db.ObjBucketRepo
	Metadata *db.ObjMetadataRepo
	Chunks   *db.ChunkRepo
	Audit    *db.AuditRepo

	// sf collapses concurrent writers of the same chunk digest within this
	// process into one database round-trip; the cross-process guarantee
	// is still the ON CONFLICT DO NOTHING in ChunkRepo.PutIfAbsent.
	sf singleflight.Group
}

func NewObjectPipeline(buckets *db.ObjBucketRepo, metadata *db.ObjMetadataRepo, chunks *db.ChunkRepo, audit *db.AuditRepo) *ObjectPipeline {
	return &ObjectPipeline{Buckets: buckets, Metadata: metadata, Chunks: chunks, Audit: audit}
}

func (p *ObjectPipeline) CreateBucket(ctx context.Context, tenant string, bucket domain.ObjBucket) (domain.ObjBucket, error) {
	if bucket.Name == "" || len(bucket.Name) > 255 {
		return domain.ObjBucket{}, fmt.Errorf("%w: bucket name must be 1-255 characters", domain.ErrValidation)
	}
	if bucket.ChunkSize <= 0 {
		bucket.ChunkSize = 1 << 20
	}
	if bucket.MaxObjectSize <= 0 {
		bucket.MaxObjectSize = 5 << 30
	}
	return p.Buckets.Create(ctx, tenant, bucket)
}

func (p *ObjectPipeline) GetBucket(ctx context.Context, tenant, name string) (domain.ObjBucket, error) {
	return p.Buckets.GetByName(ctx, tenant, name)
}

func (p *ObjectPipeline) ListBuckets(ctx context.Context, tenant string) ([]domain.ObjBucket, error) {
	return p.Buckets.List(ctx, tenant)
}

func (p *ObjectPipeline) DeleteBucket(ctx context.Context, tenant, name string) error {
	return p.Buckets.Delete(ctx, tenant, name)
}

// Upload runs all three phases against body: Begin allocates the UPLOADING
// row, Stream splits, hashes and links chunks as they arrive, Finalize
// installs the resolved size/digest/status or, on error, marks the object
// FAILED and returns the error that caused it.
func (p *ObjectPipeline) Upload(ctx context.Context, tenant, bucketName, name string, body io.Reader, contentType, description string, headers map[string]string) (domain.ObjMetadata, error) {
	bucket, err := p.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return domain.ObjMetadata{}, err
	}

	meta, err := p.Metadata.BeginUpload(ctx, tenant, bucket.ID, name, contentType, description, headers)
	if err != nil {
		return domain.ObjMetadata{}, err
	}

	size, chunkCount, digest, streamErr := p.stream(ctx, tenant, meta.ID, bucket.ChunkSize, bucket.MaxObjectSize, body)
	if streamErr != nil {
		_ = p.Metadata.MarkFailed(ctx, tenant, meta.ID)
		metrics.ObjectUploadsTotal.WithLabelValues(outcomeOf(streamErr)).Inc()
		return domain.ObjMetadata{}, streamErr
	}

	finalized, err := p.Metadata.Finalize(ctx, tenant, meta.ID, size, chunkCount, digest)
	if err != nil {
		_ = p.Metadata.MarkFailed(ctx, tenant, meta.ID)
		metrics.ObjectUploadsTotal.WithLabelValues(outcomeOf(err)).Inc()
		return domain.ObjMetadata{}, err
	}
	metrics.ObjectUploadsTotal.WithLabelValues("ok").Inc()
	_ = p.Audit.Record(ctx, tenant, bucket.Name, name, "object.put", "", nil)
	return finalized, nil
}

// stream is Phase 2 + the chunk-flushing half of Phase 3. It reads body in
// arbitrary-sized runs, buffering only until chunkSize bytes have
// accumulated, so memory use stays bounded regardless of object size.
func (p *ObjectPipeline) stream(ctx context.Context, tenant, metadataID string, chunkSize, maxObjectSize int64, body io.Reader) (size int64, chunkCount int, digestHex string, err error) {
	objectDigest := sha256.New()
	var buf []byte
	read := make([]byte, 32*1024)

	emit := func(chunk []byte) error {
		chunkDigest := sha256.Sum256(chunk)
		digest := hex.EncodeToString(chunkDigest[:])
		if err := p.writeChunk(ctx, digest, chunk); err != nil {
			return err
		}
		if err := p.Metadata.LinkChunk(ctx, tenant, metadataID, chunkCount, digest); err != nil {
			return err
		}
		chunkCount++
		return nil
	}

	for {
		n, readErr := body.Read(read)
		if n > 0 {
			objectDigest.Write(read[:n])
			size += int64(n)
			if size > maxObjectSize {
				return 0, 0, "", fmt.Errorf("%w: object exceeds bucket max_object_size of %d bytes", domain.ErrValidation, maxObjectSize)
			}
			buf = append(buf, read[:n]...)
			for int64(len(buf)) >= chunkSize {
				if err := emit(buf[:chunkSize]); err != nil {
					return 0, 0, "", err
				}
				buf = buf[chunkSize:]
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, 0, "", fmt.Errorf("read upload body: %w", readErr)
		}
	}
	if len(buf) > 0 {
		if err := emit(buf); err != nil {
			return 0, 0, "", err
		}
	}
	return size, chunkCount, hex.EncodeToString(objectDigest.Sum(nil)), nil
}

// writeChunk stores the chunk if no row with this digest exists yet,
// collapsing concurrent in-process writers of the same digest so only one
// of them issues the database round-trip.
func (p *ObjectPipeline) writeChunk(ctx context.Context, digest string, data []byte) error {
	payload := make([]byte, len(data))
	copy(payload, data)
	_, err, _ := p.sf.Do(digest, func() (interface{}, error) {
		inserted, err := p.Chunks.PutIfAbsent(ctx, digest, payload)
		if err == nil {
			metrics.ChunkWritesTotal.WithLabelValues(strconv.FormatBool(!inserted)).Inc()
		}
		return nil, err
	})
	return err
}

func (p *ObjectPipeline) GetMetadata(ctx context.Context, tenant, bucketName, name string) (domain.ObjMetadata, error) {
	bucket, err := p.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return domain.ObjMetadata{}, err
	}
	return p.Metadata.GetByName(ctx, tenant, bucket.ID, name)
}

func (p *ObjectPipeline) ListObjects(ctx context.Context, tenant, bucketName, prefix string) ([]domain.ObjMetadata, error) {
	bucket, err := p.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return nil, err
	}
	return p.Metadata.List(ctx, tenant, bucket.ID, prefix)
}

func (p *ObjectPipeline) DeleteObject(ctx context.Context, tenant, bucketName, name string) error {
	bucket, err := p.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return err
	}
	if err := p.Metadata.Delete(ctx, tenant, bucket.ID, name); err != nil {
		return err
	}
	_ = p.Audit.Record(ctx, tenant, bucket.Name, name, "object.delete", "", nil)
	return nil
}

// ReadRange validates and clamps (offset, length) against the object's
// size, fetches only the chunks that overlap the window, and stitches the
// relevant sub-slices together (spec §4.4 Ranged read).
func (p *ObjectPipeline) ReadRange(ctx context.Context, tenant, bucketName, name string, r domain.ByteRange) ([]byte, domain.ObjMetadata, error) {
	bucket, err := p.Buckets.GetByName(ctx, tenant, bucketName)
	if err != nil {
		return nil, domain.ObjMetadata{}, err
	}
	meta, err := p.Metadata.GetByName(ctx, tenant, bucket.ID, name)
	if err != nil {
		return nil, domain.ObjMetadata{}, err
	}
	if r.Offset < 0 || r.Length < 0 || r.Offset >= meta.Size {
		return nil, domain.ObjMetadata{}, domain.ErrUnsatisfiableRange
	}
	length := r.Length
	if length == 0 || r.Offset+length > meta.Size {
		length = meta.Size - r.Offset
	}

	digests, err := p.Metadata.ChunkDigests(ctx, tenant, meta.ID)
	if err != nil {
		return nil, domain.ObjMetadata{}, err
	}
	if len(digests) != meta.ChunkCount {
		return nil, domain.ObjMetadata{}, fmt.Errorf("%w: chunk link count mismatch for %s/%s", domain.ErrFatal, bucketName, name)
	}

	startChunk := r.Offset / bucket.ChunkSize
	endChunk := (r.Offset + length - 1) / bucket.ChunkSize

	out := make([]byte, 0, length)
	for idx := startChunk; idx <= endChunk; idx++ {
		chunk, err := p.Chunks.Get(ctx, digests[idx])
		if err != nil {
			return nil, domain.ObjMetadata{}, err
		}
		data := chunk.Data
		if idx == startChunk {
			skip := r.Offset - idx*bucket.ChunkSize
			data = data[skip:]
		}
		if idx == endChunk {
			end := r.Offset + length - idx*bucket.ChunkSize
			if end < int64(len(data)) {
				data = data[:end]
			}
		}
		out = append(out, data...)
	}
	return out, meta, nil
}

// ReadAll is ReadRange over the full object, for the non-Range GET path.
func (p *ObjectPipeline) ReadAll(ctx context.Context, tenant, bucketName, name string) ([]byte, domain.ObjMetadata, error) {
	meta, err := p.GetMetadata(ctx, tenant, bucketName, name)
	if err != nil {
		return nil, domain.ObjMetadata{}, err
	}
	if meta.Size == 0 {
		return nil, meta, nil
	}
	return p.readRangeForMeta(ctx, tenant, bucketName, meta, domain.ByteRange{Offset: 0, Length: meta.Size})
}

func (p *ObjectPipeline) readRangeForMeta(ctx context.Context, tenant, bucketName string, meta domain.ObjMetadata, r domain.ByteRange) ([]byte, domain.ObjMetadata, error) {
	return p.ReadRange(ctx, tenant, bucketName, meta.Name, r)
}

// Verify recomputes the object's digest from its stored chunks and
// compares it to the digest recorded at Finalize time.
func (p *ObjectPipeline) Verify(ctx context.Context, tenant, bucketName, name string) (bool, string, error) {
	meta, err := p.GetMetadata(ctx, tenant, bucketName, name)
	if err != nil {
		return false, "", err
	}
	digests, err := p.Metadata.ChunkDigests(ctx, tenant, meta.ID)
	if err != nil {
		return false, "", err
	}
	h := sha256.New()
	for _, digest := range digests {
		chunk, err := p.Chunks.Get(ctx, digest)
		if err != nil {
			return false, fmt.Sprintf("missing chunk %s", digest), nil
		}
		h.Write(chunk.Data)
	}
	recomputed := hex.EncodeToString(h.Sum(nil))
	if recomputed != meta.Digest {
		return false, fmt.Sprintf("digest mismatch: stored=%s recomputed=%s", meta.Digest, recomputed), nil
	}
	return true, "digest matches", nil
}

// OrphanChunkDigests lists shared chunks with no remaining metadata link;
// read-only diagnostic, storegate never deletes on this path (spec §9).
func (p *ObjectPipeline) OrphanChunkDigests(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return p.Chunks.OrphanDigests(ctx, limit)
}

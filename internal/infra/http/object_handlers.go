package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"storegate/internal/domain"
	"storegate/internal/usecase"

	"github.com/gin-gonic/gin"
)

type objectHandlers struct {
	pipeline *usecase.ObjectPipeline
}

type createObjBucketRequest struct {
	Name          string `json:"name"`
	ChunkSize     int64  `json:"chunkSize"`
	MaxObjectSize int64  `json:"maxObjectSize"`
}

type objBucketResponse struct {
	Name          string `json:"name"`
	ChunkSize     int64  `json:"chunkSize"`
	MaxObjectSize int64  `json:"maxObjectSize"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func objBucketResp(b domain.ObjBucket) objBucketResponse {
	return objBucketResponse{
		Name:          b.Name,
		ChunkSize:     b.ChunkSize,
		MaxObjectSize: b.MaxObjectSize,
		CreatedAt:     b.CreatedAt.UTC().Format(rfc3339),
		UpdatedAt:     b.UpdatedAt.UTC().Format(rfc3339),
	}
}

func (h *objectHandlers) createBucket(c *gin.Context) {
	var req createObjBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	bucket, err := h.pipeline.CreateBucket(c.Request.Context(), TenantFromContext(c), domain.ObjBucket{
		Name:          req.Name,
		ChunkSize:     req.ChunkSize,
		MaxObjectSize: req.MaxObjectSize,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, objBucketResp(bucket))
}

func (h *objectHandlers) listBuckets(c *gin.Context) {
	buckets, err := h.pipeline.ListBuckets(c.Request.Context(), TenantFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]objBucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, objBucketResp(b))
	}
	c.JSON(http.StatusOK, out)
}

func (h *objectHandlers) getBucket(c *gin.Context) {
	bucket, err := h.pipeline.GetBucket(c.Request.Context(), TenantFromContext(c), c.Param("bucket"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, objBucketResp(bucket))
}

func (h *objectHandlers) putBucket(c *gin.Context) {
	var req createObjBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	req.Name = c.Param("bucket")
	bucket, err := h.pipeline.CreateBucket(c.Request.Context(), TenantFromContext(c), domain.ObjBucket{
		Name:          req.Name,
		ChunkSize:     req.ChunkSize,
		MaxObjectSize: req.MaxObjectSize,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, objBucketResp(bucket))
}

func (h *objectHandlers) deleteBucket(c *gin.Context) {
	if err := h.pipeline.DeleteBucket(c.Request.Context(), TenantFromContext(c), c.Param("bucket")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *objectHandlers) listObjects(c *gin.Context) {
	objects, err := h.pipeline.ListObjects(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Query("prefix"))
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]objMetadataResponse, 0, len(objects))
	for _, m := range objects {
		out = append(out, metadataResponse(m))
	}
	c.JSON(http.StatusOK, out)
}

type objMetadataResponse struct {
	Name            string            `json:"name"`
	Size            int64             `json:"size"`
	ChunkCount      int               `json:"chunkCount"`
	Digest          string            `json:"digest"`
	DigestAlgorithm string            `json:"digestAlgorithm"`
	ContentType     string            `json:"contentType,omitempty"`
	Description     string            `json:"description,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Status          string            `json:"status"`
	CreatedAt       string            `json:"createdAt"`
	UpdatedAt       string            `json:"updatedAt"`
}

func metadataResponse(m domain.ObjMetadata) objMetadataResponse {
	return objMetadataResponse{
		Name:            m.Name,
		Size:            m.Size,
		ChunkCount:      m.ChunkCount,
		Digest:          m.Digest,
		DigestAlgorithm: m.DigestAlgorithm,
		ContentType:     m.ContentType,
		Description:     m.Description,
		Headers:         m.Headers,
		Status:          string(m.Status),
		CreatedAt:       m.CreatedAt.UTC().Format(rfc3339),
		UpdatedAt:       m.UpdatedAt.UTC().Format(rfc3339),
	}
}

func (h *objectHandlers) putObject(c *gin.Context) {
	headers := map[string]string{}
	if v := c.GetHeader("X-Object-Description"); v != "" {
		headers["description"] = v
	}
	meta, err := h.pipeline.Upload(
		c.Request.Context(),
		TenantFromContext(c),
		c.Param("bucket"),
		c.Param("name"),
		c.Request.Body,
		c.GetHeader("Content-Type"),
		c.GetHeader("X-Object-Description"),
		headers,
	)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, metadataResponse(meta))
}

func (h *objectHandlers) getObject(c *gin.Context) {
	tenant := TenantFromContext(c)
	bucketName, name := c.Param("bucket"), c.Param("name")

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" {
		meta, err := h.pipeline.GetMetadata(c.Request.Context(), tenant, bucketName, name)
		if err != nil {
			WriteError(c, err)
			return
		}
		byteRange, err := parseRangeHeader(rangeHeader, meta.Size)
		if err != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
			WriteError(c, err)
			return
		}
		data, meta, err := h.pipeline.ReadRange(c.Request.Context(), tenant, bucketName, name, byteRange)
		if err != nil {
			WriteError(c, err)
			return
		}
		writeObjectHeaders(c, meta)
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", byteRange.Offset, byteRange.Offset+int64(len(data))-1, meta.Size))
		c.Data(http.StatusPartialContent, contentTypeOr(meta.ContentType), data)
		return
	}

	data, meta, err := h.pipeline.ReadAll(c.Request.Context(), tenant, bucketName, name)
	if err != nil {
		WriteError(c, err)
		return
	}
	writeObjectHeaders(c, meta)
	c.Data(http.StatusOK, contentTypeOr(meta.ContentType), data)
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func writeObjectHeaders(c *gin.Context, meta domain.ObjMetadata) {
	c.Header("X-Object-Digest", meta.Digest)
	c.Header("X-Object-Digest-Algorithm", meta.DigestAlgorithm)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.Name))
	c.Header("Accept-Ranges", "bytes")
}

// parseRangeHeader supports the three forms spec §6 names: "bytes=a-b",
// "bytes=a-", and "bytes=-n" (last n bytes).
func parseRangeHeader(header string, size int64) (domain.ByteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return domain.ByteRange{}, domain.ErrUnsatisfiableRange
	}
	spec := strings.TrimPrefix(header, prefix)
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return domain.ByteRange{}, domain.ErrUnsatisfiableRange
	}

	if parts[0] == "" {
		n, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || n <= 0 {
			return domain.ByteRange{}, domain.ErrUnsatisfiableRange
		}
		offset := size - n
		if offset < 0 {
			offset = 0
		}
		return domain.ByteRange{Offset: offset, Length: size - offset}, nil
	}

	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 || start >= size {
		return domain.ByteRange{}, domain.ErrUnsatisfiableRange
	}
	if parts[1] == "" {
		return domain.ByteRange{Offset: start, Length: size - start}, nil
	}
	end, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return domain.ByteRange{}, domain.ErrUnsatisfiableRange
	}
	if end >= size {
		end = size - 1
	}
	return domain.ByteRange{Offset: start, Length: end - start + 1}, nil
}

func (h *objectHandlers) getMetadata(c *gin.Context) {
	meta, err := h.pipeline.GetMetadata(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("name"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, metadataResponse(meta))
}

func (h *objectHandlers) verify(c *gin.Context) {
	valid, message, err := h.pipeline.Verify(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("name"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid, "message": message})
}

func (h *objectHandlers) deleteObject(c *gin.Context) {
	if err := h.pipeline.DeleteObject(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("name")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *objectHandlers) orphanChunks(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	digests, err := h.pipeline.OrphanChunkDigests(c.Request.Context(), limit)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"digests": digests})
}

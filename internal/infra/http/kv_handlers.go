package http

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"storegate/internal/domain"
	"storegate/internal/usecase"

	"github.com/gin-gonic/gin"
)

type kvHandlers struct {
	engine *usecase.KVEngine
}

type createKVBucketRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	MaxValueSize     int64  `json:"maxValueSize"`
	MaxHistoryPerKey int    `json:"maxHistoryPerKey"`
	TTLSeconds       *int64 `json:"ttlSeconds"`
}

type kvBucketResponse struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	MaxValueSize     int64  `json:"maxValueSize"`
	MaxHistoryPerKey int    `json:"maxHistoryPerKey"`
	TTLSeconds       *int64 `json:"ttlSeconds,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

func bucketResponse(b domain.KVBucket) kvBucketResponse {
	return kvBucketResponse{
		Name:             b.Name,
		Description:      b.Description,
		MaxValueSize:     b.MaxValueSize,
		MaxHistoryPerKey: b.MaxHistoryPerKey,
		TTLSeconds:       b.TTLSeconds,
		CreatedAt:        b.CreatedAt.UTC().Format(rfc3339),
		UpdatedAt:        b.UpdatedAt.UTC().Format(rfc3339),
	}
}

const rfc3339 = "2006-01-02T15:04:05.999999999Z07:00"

func (h *kvHandlers) createBucket(c *gin.Context) {
	var req createKVBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	bucket, err := h.engine.CreateBucket(c.Request.Context(), TenantFromContext(c), domain.KVBucket{
		Name:             req.Name,
		Description:      req.Description,
		MaxValueSize:     req.MaxValueSize,
		MaxHistoryPerKey: req.MaxHistoryPerKey,
		TTLSeconds:       req.TTLSeconds,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, bucketResponse(bucket))
}

func (h *kvHandlers) listBuckets(c *gin.Context) {
	buckets, err := h.engine.ListBuckets(c.Request.Context(), TenantFromContext(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]kvBucketResponse, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

func (h *kvHandlers) getBucket(c *gin.Context) {
	bucket, err := h.engine.GetBucket(c.Request.Context(), TenantFromContext(c), c.Param("bucket"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, bucketResponse(bucket))
}

func (h *kvHandlers) putBucket(c *gin.Context) {
	var req createKVBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	req.Name = c.Param("bucket")
	bucket, err := h.engine.CreateBucket(c.Request.Context(), TenantFromContext(c), domain.KVBucket{
		Name:             req.Name,
		Description:      req.Description,
		MaxValueSize:     req.MaxValueSize,
		MaxHistoryPerKey: req.MaxHistoryPerKey,
		TTLSeconds:       req.TTLSeconds,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, bucketResponse(bucket))
}

func (h *kvHandlers) deleteBucket(c *gin.Context) {
	if err := h.engine.DeleteBucket(c.Request.Context(), TenantFromContext(c), c.Param("bucket")); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *kvHandlers) purgeBucket(c *gin.Context) {
	tenant := TenantFromContext(c)
	bucketName := c.Param("bucket")
	keys, err := h.engine.ListKeys(c.Request.Context(), tenant, bucketName, "")
	if err != nil {
		WriteError(c, err)
		return
	}
	var purged int
	for _, key := range keys {
		if _, err := h.engine.Purge(c.Request.Context(), tenant, bucketName, key); err != nil {
			WriteError(c, err)
			return
		}
		purged++
	}
	c.JSON(http.StatusOK, gin.H{"count": purged})
}

func (h *kvHandlers) listKeys(c *gin.Context) {
	keys, err := h.engine.ListKeys(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Query("prefix"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

type kvEntryResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
	Revision  int64  `json:"revision"`
	Operation string `json:"operation"`
	CreatedAt string `json:"createdAt"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func entryResponse(e domain.KVEntry) kvEntryResponse {
	out := kvEntryResponse{
		Key:       e.Key,
		Revision:  e.Revision,
		Operation: string(e.Operation),
		CreatedAt: e.CreatedAt.UTC().Format(rfc3339),
	}
	if e.Operation == domain.KVOpPut {
		out.Value = base64.StdEncoding.EncodeToString(e.Value)
	}
	if e.ExpiresAt != nil {
		out.ExpiresAt = e.ExpiresAt.UTC().Format(rfc3339)
	}
	return out
}

func (h *kvHandlers) getKey(c *gin.Context) {
	entry, err := h.engine.Get(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("key"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

func (h *kvHandlers) getKeyRevision(c *gin.Context) {
	revision, err := strconv.ParseInt(c.Param("revision"), 10, 64)
	if err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	entry, err := h.engine.GetRevision(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("key"), revision)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

func (h *kvHandlers) getKeyHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	history, err := h.engine.History(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("key"), limit)
	if err != nil {
		WriteError(c, err)
		return
	}
	out := make([]kvEntryResponse, 0, len(history))
	for _, e := range history {
		out = append(out, entryResponse(e))
	}
	c.JSON(http.StatusOK, out)
}

type putKeyRequest struct {
	Value      string `json:"value"`
	Base64     bool   `json:"base64"`
	TTLSeconds *int64 `json:"ttlSeconds"`
}

func (h *kvHandlers) putKey(c *gin.Context) {
	var req putKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, domain.ErrValidation)
		return
	}
	value := []byte(req.Value)
	if req.Base64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Value)
		if err != nil {
			WriteError(c, domain.ErrValidation)
			return
		}
		value = decoded
	}

	putReq := domain.PutRequest{
		Bucket:     c.Param("bucket"),
		Key:        c.Param("key"),
		Value:      value,
		TTLSeconds: req.TTLSeconds,
	}

	var result domain.PutResult
	var err error
	tenant := TenantFromContext(c)
	if raw := c.Query("expectedRevision"); raw != "" {
		var expected int64
		expected, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(c, domain.ErrValidation)
			return
		}
		putReq.ExpectedRevision = &expected
		result, err = h.engine.CAS(c.Request.Context(), tenant, putReq)
		if err != nil {
			WriteError(c, err)
			return
		}
	} else {
		result, err = h.engine.Put(c.Request.Context(), tenant, putReq)
		if err != nil {
			WriteError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"revision":  result.Revision,
		"createdAt": result.CreatedAt.UTC().Format(rfc3339),
	})
}

func (h *kvHandlers) deleteKey(c *gin.Context) {
	var expected *int64
	if raw := c.Query("expectedRevision"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(c, domain.ErrValidation)
			return
		}
		expected = &v
	}
	result, err := h.engine.Delete(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("key"), expected)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revision": result.Revision})
}

func (h *kvHandlers) purgeKey(c *gin.Context) {
	count, err := h.engine.Purge(c.Request.Context(), TenantFromContext(c), c.Param("bucket"), c.Param("key"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

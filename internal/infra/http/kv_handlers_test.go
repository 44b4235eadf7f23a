package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPutKey_RejectsMalformedBase64Value(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &kvHandlers{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/v1/kv/b/k", strings.NewReader(`{"value":"not-base64!!","base64":true}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "bucket", Value: "b"}, {Key: "key", Value: "k"}}

	h.putKey(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPutKey_RejectsUnparseableExpectedRevision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &kvHandlers{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/v1/kv/b/k?expectedRevision=not-a-number", strings.NewReader(`{"value":"aGVsbG8="}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "bucket", Value: "b"}, {Key: "key", Value: "k"}}

	h.putKey(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetKeyRevision_RejectsNonNumericRevision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &kvHandlers{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/kv/b/k/rev/not-a-number", nil)
	c.Params = gin.Params{{Key: "bucket", Value: "b"}, {Key: "key", Value: "k"}, {Key: "revision", Value: "not-a-number"}}

	h.getKeyRevision(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteKey_RejectsUnparseableExpectedRevision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &kvHandlers{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/v1/kv/b/k?expectedRevision=not-a-number", nil)
	c.Params = gin.Params{{Key: "bucket", Value: "b"}, {Key: "key", Value: "k"}}

	h.deleteKey(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBucket_RejectsMalformedJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &kvHandlers{}
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/kv", strings.NewReader(`not json`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.createBucket(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

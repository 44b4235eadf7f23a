package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"storegate/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

func TestTenantMiddleware_NormalizesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantMiddleware())
	var got string
	router.GET("/test", func(c *gin.Context) {
		got = TenantFromContext(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Tenant-ID", "  tenant-a  ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got != "tenant-a" {
		t.Fatalf("got %q, want tenant-a", got)
	}
}

func TestRequireRole_RejectsMissingPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantMiddleware())
	authz := rbac.NewAuthorizer()
	router.GET("/test", RequireRole(authz, rbac.PermissionKVRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_AllowsAuthorizedPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantMiddleware())
	authz := rbac.NewAuthorizer()
	router.GET("/test", RequireRole(authz, rbac.PermissionKVRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	req.Header.Set("X-Principal-Subject", "user-1")
	req.Header.Set("X-Principal-Tenant", "tenant-a")
	req.Header.Set("X-Principal-Roles", "kv:read, object:read")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_RejectsCrossTenantPrincipal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantMiddleware())
	authz := rbac.NewAuthorizer()
	router.GET("/test", RequireRole(authz, rbac.PermissionKVRead), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Tenant-ID", "tenant-b")
	req.Header.Set("X-Principal-Subject", "user-1")
	req.Header.Set("X-Principal-Tenant", "tenant-a")
	req.Header.Set("X-Principal-Roles", "kv:read")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

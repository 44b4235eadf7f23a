package rbac

import (
	"testing"

	"storegate/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorizer_TenantMismatch(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject:  "user",
		TenantID: "tenant-a",
		Roles:    []string{PermissionKVRead},
	}
	err := authz.Require(principal, "tenant-b", PermissionKVRead)
	authzErr, ok := IsAuthzError(err)
	require.True(t, ok, "expected authz error, got %v", err)
	assert.Equal(t, "TENANT_MISMATCH", authzErr.Code)
}

func TestAuthorizer_MissingRole(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject:  "user",
		TenantID: "tenant-a",
		Roles:    []string{PermissionKVRead},
	}
	err := authz.Require(principal, "tenant-a", PermissionObjectWrite)
	authzErr, ok := IsAuthzError(err)
	require.True(t, ok, "expected authz error, got %v", err)
	assert.Equal(t, "MISSING_ROLE", authzErr.Code)
}

func TestAuthorizer_CategoryAdminRoleGrantsSiblingPermission(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject:  "user",
		TenantID: "tenant-a",
		Roles:    []string{"kv_admin"},
	}
	assert.NoError(t, authz.Require(principal, "tenant-a", PermissionKVRead))
	assert.NoError(t, authz.Require(principal, "tenant-a", PermissionKVWrite))
	assert.Error(t, authz.Require(principal, "tenant-a", PermissionObjectRead))
}

func TestAuthorizer_AdminRoleBypassesEverything(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject: "admin",
		Roles:   []string{DefaultAdminRole},
	}
	assert.NoError(t, authz.Require(principal, "tenant-b", PermissionAdmin))
	assert.NoError(t, authz.Require(principal, "tenant-b", PermissionKVRead))
}

func TestAuthorizer_AdminPermissionRequiresAdminRole(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject:  "user",
		TenantID: "tenant-a",
		Roles:    []string{PermissionKVRead},
	}
	err := authz.Require(principal, "", PermissionAdmin)
	authzErr, ok := IsAuthzError(err)
	require.True(t, ok, "expected authz error, got %v", err)
	assert.Equal(t, "MISSING_ROLE", authzErr.Code)
}

func TestAuthorizer_EmptySubjectIsUnauthorized(t *testing.T) {
	authz := NewAuthorizer()
	err := authz.Require(domain.Principal{}, "tenant-a", PermissionKVRead)
	assert.Equal(t, domain.ErrUnauthorized, err)
}

func TestAuthorizer_AbsentTenantSkipsTenantCheck(t *testing.T) {
	authz := NewAuthorizer()
	principal := domain.Principal{
		Subject:  "user",
		TenantID: "tenant-a",
		Roles:    []string{PermissionKVRead},
	}
	assert.NoError(t, authz.Require(principal, "", PermissionKVRead))
}

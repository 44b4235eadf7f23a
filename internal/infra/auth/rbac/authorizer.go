// Package rbac implements the minimal role gate that sits in front of the
// KV and object store handlers. Authentication itself is an external
// collaborator; this package only decides whether an already-authenticated
// principal may perform a given operation.
package rbac

import (
	"errors"
	"strings"

	"storegate/internal/domain"
)

const (
	// DefaultAdminRole bypasses every permission and tenant check.
	DefaultAdminRole = "storegate_admin"

	PermissionKVRead      = "kv:read"
	PermissionKVWrite     = "kv:write"
	PermissionObjectRead  = "object:read"
	PermissionObjectWrite = "object:write"
	PermissionWatch       = "watch:subscribe"
	PermissionAdmin       = "admin:*"
)

// AuthzError distinguishes why a Require call failed so the HTTP layer can
// map it to the right status code and body.
type AuthzError struct {
	Code string
	Err  error
}

func (e *AuthzError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code
}

func (e *AuthzError) Unwrap() error {
	return e.Err
}

type Authorizer struct {
	adminRole string
}

func NewAuthorizer() *Authorizer {
	return &Authorizer{adminRole: DefaultAdminRole}
}

// Require checks that principal may perform permission against tenantID.
// A principal whose TenantID differs from the target tenant is rejected
// even if it otherwise holds the permission — tenant isolation is not a
// role, it is a hard boundary (spec §4.1).
func (a *Authorizer) Require(principal domain.Principal, tenantID, permission string) error {
	if principal.Subject == "" {
		return domain.ErrUnauthorized
	}
	if principal.HasRole(a.adminRole) {
		return nil
	}
	if strings.HasPrefix(permission, "admin:") {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	if tenantID != "" && principal.TenantID != tenantID {
		return &AuthzError{Code: "TENANT_MISMATCH", Err: domain.ErrForbidden}
	}
	if !hasPermission(principal, permission) {
		return &AuthzError{Code: "MISSING_ROLE", Err: domain.ErrForbidden}
	}
	return nil
}

// hasPermission maps a caller's roles onto the permission set a role name
// grants. Storegate keeps this flat rather than hierarchical: a role name
// is exactly the permission it grants, plus "_admin" suffix roles grant a
// whole category (e.g. "kv_admin" grants both kv:read and kv:write).
func hasPermission(principal domain.Principal, permission string) bool {
	category := strings.SplitN(permission, ":", 2)[0]
	for _, role := range principal.Roles {
		if role == permission || role == category+"_admin" {
			return true
		}
	}
	return false
}

func IsAuthzError(err error) (*AuthzError, bool) {
	var authz *AuthzError
	if errors.As(err, &authz) {
		return authz, true
	}
	return nil, false
}

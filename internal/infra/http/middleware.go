package http

import (
	"strings"

	"storegate/internal/domain"
	"storegate/internal/infra/auth/rbac"

	"github.com/gin-gonic/gin"
)

const (
	tenantKey    = "tenant"
	principalKey = "principal"
)

// TenantMiddleware extracts X-Tenant-ID and normalizes it before any
// handler or repository call sees it (spec §4.1, §6).
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tenantKey, domain.NormalizeTenant(c.GetHeader("X-Tenant-ID")))
		c.Next()
	}
}

func TenantFromContext(c *gin.Context) string {
	if v, ok := c.Get(tenantKey); ok {
		if tenant, ok := v.(string); ok {
			return tenant
		}
	}
	return ""
}

// HeaderAuthenticator reads the caller's identity from plain headers, the
// same convention the header-based authenticator in the rest of the pack
// uses. Authentication itself (verifying the headers came from someone
// trustworthy) is an external collaborator's job — an API gateway or
// sidecar is expected to set these headers after verifying a real token.
type HeaderAuthenticator struct{}

func NewHeaderAuthenticator() *HeaderAuthenticator {
	return &HeaderAuthenticator{}
}

func (a *HeaderAuthenticator) Authenticate(c *gin.Context) domain.Principal {
	principal := domain.Principal{
		Subject:  strings.TrimSpace(c.GetHeader("X-Principal-Subject")),
		TenantID: domain.NormalizeTenant(c.GetHeader("X-Principal-Tenant")),
	}
	if roles := strings.TrimSpace(c.GetHeader("X-Principal-Roles")); roles != "" {
		principal.Roles = splitCSV(roles)
	}
	return principal
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RequireRole authenticates the caller from request headers and checks
// permission against the request's tenant before the handler runs.
func RequireRole(authorizer *rbac.Authorizer, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticator := NewHeaderAuthenticator()
		principal := authenticator.Authenticate(c)
		tenant := TenantFromContext(c)
		if err := authorizer.Require(principal, tenant, permission); err != nil {
			WriteError(c, err)
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func PrincipalFromContext(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if principal, ok := v.(domain.Principal); ok {
			return principal
		}
	}
	return domain.Principal{}
}

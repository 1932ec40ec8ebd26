package middleware

import (
	"strings"

	"borerelay/internal/core/domain"
	"borerelay/internal/core/ports"
	"borerelay/pkg/errors"

	"github.com/gin-gonic/gin"
)

const permissionsKey = "permissions"

// Rejection messages shown to dashboard users.
const (
	MsgNotAuthenticated = "Não autenticado"
	MsgForbidden        = "Sem permissão"
	MsgOwnerOnly        = "Sem permissão (apenas CEO)"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Anything else yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware resolves the bearer token into a PermissionResult and
// stores it on the context. A request without a token is rejected with 401;
// a token that resolves to nothing is left for RequirePermission to refuse.
func AuthMiddleware(resolver ports.PermissionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Error(errors.NewUnauthorizedError(MsgNotAuthenticated))
			c.Abort()
			return
		}

		c.Set(permissionsKey, resolver.Resolve(c.Request.Context(), token))
		c.Next()
	}
}

// Permissions returns what AuthMiddleware resolved for this request.
func Permissions(c *gin.Context) (domain.PermissionResult, bool) {
	v, ok := c.Get(permissionsKey)
	if !ok {
		return domain.PermissionResult{}, false
	}
	perms, ok := v.(domain.PermissionResult)
	return perms, ok
}

// RequirePermission aborts with 403 and message unless allowed accepts the
// permissions resolved by AuthMiddleware.
func RequirePermission(allowed func(domain.PermissionResult) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		perms, ok := Permissions(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError(MsgNotAuthenticated))
			c.Abort()
			return
		}
		if !allowed(perms) {
			c.Error(errors.NewForbiddenError(message))
			c.Abort()
			return
		}
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return RequirePermission(func(p domain.PermissionResult) bool { return p.IsStaff }, MsgForbidden)
}

func RequireManage() gin.HandlerFunc {
	return RequirePermission(func(p domain.PermissionResult) bool { return p.CanManage }, MsgForbidden)
}

func RequireOwner() gin.HandlerFunc {
	return RequirePermission(func(p domain.PermissionResult) bool { return p.IsOwner }, MsgOwnerOnly)
}

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-music-api/internal/models"
	appErrors "github.com/noah-isme/church-music-api/pkg/errors"
	"github.com/noah-isme/church-music-api/pkg/response"
)

// RequireRoles admits callers whose token carries one of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return requireRole(func(role models.UserRole) bool {
		_, ok := allowed[role]
		return ok
	})
}

// RequireLeadership admits directors, pastors and their associates.
func RequireLeadership() gin.HandlerFunc {
	return requireRole(models.UserRole.IsLeadership)
}

func requireRole(admit func(models.UserRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		claims, ok := value.(*models.JWTClaims)
		if !exists || !ok || claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !admit(claims.Role) {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "this action requires a leadership role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

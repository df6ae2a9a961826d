package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studio-scheduler/internal/models"
	appErrors "github.com/noah-isme/studio-scheduler/pkg/errors"
)

// RBAC admits authenticated callers whose role is in allowed. It must run after JWT.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	roles := make(map[models.UserRole]bool, len(allowed))
	for _, role := range allowed {
		roles[role] = true
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			reject(c, appErrors.ErrUnauthorized)
			return
		}
		if !roles[claims.Role] {
			reject(c, appErrors.WithDetails(appErrors.ErrForbidden, "", map[string]any{"role": claims.Role}))
			return
		}
		c.Next()
	}
}

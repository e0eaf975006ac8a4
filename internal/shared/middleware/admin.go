package middleware

import (
	"github.com/gin-gonic/gin"

	"licensestore-backend/internal/shared/response"
)

// AdminMiddleware chặn request không có admin role.
// Role được AuthMiddleware set vào context từ JWT claims, nên middleware
// này luôn phải đứng SAU AuthMiddleware trong chain.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		if roleStr, ok := role.(string); !ok || roleStr != "admin" {
			response.Forbidden(c, "Access denied: admin role required")
			c.Abort()
			return
		}

		c.Next()
	}
}

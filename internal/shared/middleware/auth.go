package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"licensestore-backend/pkg/jwt"
)

// AuthMiddleware - Middleware xác thực JWT token.
// Token do identity service bên ngoài cấp; ở đây chỉ verify và extract user.
func AuthMiddleware(jwtManager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Lấy token từ Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(401, gin.H{"error": "missing authorization header"})
			c.Abort()
			return
		}

		// 2. Extract token từ "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(401, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		// 3. Verify và parse claims
		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			c.JSON(401, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		// 4. Convert user id sang uuid.UUID
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			c.JSON(401, gin.H{"error": "invalid user ID in token"})
			c.Abort()
			return
		}

		// 5. Set identity vào context ✓ ĐÂY LÀ CHÌA KHÓA
		c.Set("userID", userID)

		// Role cho AdminMiddleware (default "user" nếu token không có)
		if claims.Role != "" {
			c.Set("role", claims.Role)
		} else {
			c.Set("role", "user")
		}

		c.Next()
	}
}

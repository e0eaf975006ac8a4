package middleware

import (
	"github.com/gin-gonic/gin"

	"licensestore-backend/internal/shared/utils"
)

// ClientIPMiddleware resolve IP thật của client (sau proxy/load balancer)
// và set vào gin context. VNPay yêu cầu vnp_IpAddr trong payment request,
// nên middleware này phải đứng trước wallet handlers.
func ClientIPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("client_ip", utils.ExtractClientIP(c))
		c.Next()
	}
}

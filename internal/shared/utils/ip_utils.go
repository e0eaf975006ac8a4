package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

// ExtractClientIP lấy IP thật của client qua proxy/load balancer.
// Ưu tiên: X-Forwarded-For (IP đầu tiên) -> X-Real-IP -> RemoteAddr.
func ExtractClientIP(c *gin.Context) string {
	// X-Forwarded-For format: "client, proxy1, proxy2"
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
		if isValidIP(clientIP) {
			return clientIP
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" {
		if isValidIP(xri) {
			return xri
		}
	}

	// RemoteAddr format: "IP:port" hoặc "[IPv6]:port"
	ip, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		ip = c.Request.RemoteAddr
	}
	if isValidIP(ip) {
		return ip
	}

	return "127.0.0.1"
}

func isValidIP(ip string) bool {
	return ip != "" && net.ParseIP(ip) != nil
}

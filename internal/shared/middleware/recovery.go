package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"licensestore-backend/internal/shared/response"
)

// Recovery bắt panic từ handlers và trả về 500 thay vì drop connection.
// Gateway callback đặc biệt cần điều này: VNPay sẽ retry khi connection
// bị drop, nên panic vẫn phải kết thúc bằng một HTTP response hợp lệ.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Interface("error", err).
					Bytes("stack", debug.Stack()).
					Msg("Panic recovered")

				response.ErrorResponse(c, http.StatusInternalServerError,
					"INTERNAL_SERVER_ERROR", "Internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}

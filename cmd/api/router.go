package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"licensestore-backend/internal/shared/middleware"
	"licensestore-backend/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ClientIPMiddleware(),
	)

	v1 := router.Group("/v1")
	{
		// Health check
		v1.GET("/health", healthCheckHandler(c))

		// ========================================
		// PUBLIC ROUTES (no JWT)
		// ========================================
		// Gateway callbacks: IPN từ VNPay server, return từ browser
		c.WalletHandler.RegisterCallbackRoutes(v1)
		c.LicenseHandler.RegisterPublicRoutes(v1)

		// ========================================
		// AUTHENTICATED ROUTES
		// ========================================
		// Identity được cấp bên ngoài - middleware chỉ parse và verify JWT
		authed := v1.Group("")
		authed.Use(middleware.AuthMiddleware(c.JWTManager))
		{
			c.WalletHandler.RegisterRoutes(authed)
			c.LicenseHandler.RegisterRoutes(authed)
		}
	}

	return router
}

// ========================================
// HEALTH CHECK HANDLER
// ========================================
func healthCheckHandler(appCtx *container.Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		health := gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"version":   appCtx.Config.App.Version,
			"services":  gin.H{},
		}

		// Check database
		dbStatus := "ok"
		if appCtx.DB == nil || appCtx.DB.Pool == nil {
			dbStatus = "disconnected"
			health["status"] = "degraded"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.DB.HealthCheck(ctx); err != nil {
				dbStatus = fmt.Sprintf("error: %v", err)
				health["status"] = "degraded"
			}
		}

		// Check redis
		redisStatus := "ok"
		if appCtx.Cache == nil {
			redisStatus = "disconnected"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := appCtx.Cache.Ping(ctx); err != nil {
				redisStatus = fmt.Sprintf("error: %v", err)
			}
		}

		health["services"] = gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		}

		statusCode := http.StatusOK
		if dbStatus != "ok" {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

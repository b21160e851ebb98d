package main

import (
	"github.com/haruocode/otomohan-sub001/internal/auth"
	"github.com/haruocode/otomohan-sub001/internal/gateway"
	"github.com/haruocode/otomohan-sub001/internal/httpapi"
	"github.com/haruocode/otomohan-sub001/internal/observability"
	"github.com/haruocode/otomohan-sub001/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, h httpapi.Handlers, gw *gateway.Gateway) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	// Signaling websocket. Auth happens inside the handshake; the token may
	// arrive as a query parameter, which the header middleware can't see.
	r.GET("/ws", gw.ServeWS)

	authMW := auth.RequireAccessToken(authManager)

	v1 := r.Group("/v1")
	{
		// AUTH routes (token issuance).
		// NOTE: This is a placeholder login route; real credential validation is not implemented.
		v1.POST("/auth/login", h.Login)

		protected := v1.Group("")
		protected.Use(authMW)
		{
			protected.GET("/me", func(c *gin.Context) {
				uid, _ := auth.UserID(c.Request.Context())
				role, _ := auth.Role(c.Request.Context())
				c.JSON(200, gin.H{"user_id": uid, "role": role})
			})

			// WALLET routes
			protected.GET("/wallet/balance",
				rbac.RequireAnyRole(rbac.RoleCaller, rbac.RoleOtomo), h.GetWalletBalance)

			// CALL routes
			protected.GET("/calls/:call_id",
				rbac.RequireAnyRole(rbac.RoleCaller, rbac.RoleOtomo), h.GetCall)

			// ADMIN routes
			admin := protected.Group("/admin")
			admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
			{
				admin.GET("/ping", func(c *gin.Context) {
					c.JSON(200, gin.H{"status": "ok"})
				})
				admin.POST("/wallet/credit", h.AdminCredit)
				admin.GET("/reports/usage", h.UsageReport)
				admin.GET("/reports/spend", h.SpendReport)
			}
		}
	}

	// Media layer signals. The media bridge authenticates with its own access
	// token carrying the media_bridge role.
	internalGroup := r.Group("/internal")
	internalGroup.Use(authMW)
	internalGroup.Use(rbac.RequireAnyRole(rbac.RoleMediaBridge))
	{
		internalGroup.POST("/calls/:call_id/connected", h.CallConnected)
		internalGroup.POST("/calls/:call_id/heartbeat", h.CallHeartbeat)
	}
}

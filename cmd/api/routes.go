package main

import (
	"database/sql"
	"time"

	"dialer-engine/internal/httpapi"
	"dialer-engine/internal/rbac"
	"dialer-engine/internal/telephony"
	"dialer-engine/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, statusHandler *telephony.StatusCallbackHandler, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public).
	// NOTE: production deployments should put provider signature
	// validation in front of this endpoint.
	if statusHandler != nil {
		r.POST("/webhooks/telephony/status", statusHandler.HandleStatusCallback)
	}

	api := r.Group("/api")

	// AUTH routes (token issuance) sit outside the auth middleware.
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	protected := api.Group("")
	protected.Use(authMW)
	{
		// CAMPAIGN routes. Reads for everyone, lifecycle for operators.
		campaignsGroup := protected.Group("/dialer/campaigns")
		{
			read := rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer)
			manage := rbac.RequireAnyRole(rbac.RoleOperator)

			campaignsGroup.GET("", read, h.ListCampaigns)
			campaignsGroup.POST("", manage, h.CreateCampaign)
			campaignsGroup.GET("/:id", read, h.GetCampaign)
			campaignsGroup.PUT("/:id/status", manage, h.UpdateCampaignStatus)
			campaignsGroup.DELETE("/:id", manage, h.DeleteCampaign)
			campaignsGroup.GET("/:id/logs", read, h.GetCampaignLogs)
		}

		// COMPLIANCE routes. Settings writes are admin-only.
		complianceGroup := protected.Group("/compliance")
		{
			read := rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleViewer)

			complianceGroup.GET("/metrics", read, h.GetDashboardMetrics)
			complianceGroup.GET("/settings", read, h.GetComplianceSettings)
			complianceGroup.POST("/settings", rbac.RequireAnyRole(rbac.RoleAdmin), h.UpdateComplianceSettings)
			complianceGroup.GET("/violations", read, h.ListViolations)
			complianceGroup.GET("/violations/export", read, h.ExportViolations)
		}
	}
}

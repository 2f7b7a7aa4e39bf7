package httpapi

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fluxmeter/billing-core/internal/httpapi/middleware"
)

func splitEnvList(name string, fallback []string) []string {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// configureCORS mirrors the teacher's CORS_ALLOWED_ORIGINS /
// CORS_ALLOWED_METHODS / CORS_ALLOWED_HEADERS / CORS_EXPOSED_HEADERS /
// CORS_ALLOW_CREDENTIALS env-var convention (apps/api/server/server.go).
func configureCORS() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = splitEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	cfg.AllowMethods = splitEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	cfg.AllowHeaders = splitEnvList("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-API-Key", "X-Request-Id"})
	cfg.ExposeHeaders = splitEnvList("CORS_EXPOSED_HEADERS", []string{"X-Request-Id"})
	cfg.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"
	return cors.New(cfg)
}

// NewRouter wires every spec §6 endpoint over h, grounded on the teacher's
// InitializeRoutes split into public/protected/admin route groups.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(configureCORS())
	router.Use(middleware.RequestID())

	router.GET("/healthz", h.Healthz)

	jwtApp := middleware.RequireJWT(h.TokenEngine, "appId")
	jwtNoAppParam := middleware.RequireJWT(h.TokenEngine, "")
	adminAuth := middleware.RequireAdminKey(h.AdminKey)

	v1 := router.Group("/v1")

	admin := v1.Group("/admin")
	admin.Use(adminAuth)
	admin.POST("/apps", h.CreateApp)
	admin.POST("/apps/:appId/secrets", h.MintAppSecret)
	admin.DELETE("/apps/:appId/secrets/:kid", h.RevokeAppSecret)

	apps := v1.Group("/apps/:appId")
	apps.Use(jwtApp)
	apps.POST("/teams", h.CreateTeam)
	apps.GET("/teams/:teamId", h.GetTeam)
	apps.DELETE("/teams/:teamId/users/:userId", h.RemoveTeamUser)
	apps.POST("/usage/events", h.IngestUsageEvents)
	apps.GET("/teams/:teamId/entitlements", h.GetEntitlements)
	apps.POST("/teams/:teamId/checkout/subscription", h.CreateSubscriptionCheckout)
	apps.POST("/teams/:teamId/checkout/topup", h.CreateTopupCheckout)
	apps.POST("/teams/:teamId/portal", h.CreatePortalSession)

	teams := v1.Group("/teams")
	teams.Use(jwtNoAppParam)
	teams.GET("/:teamId/usage", middleware.RequireScope("billing:read"), h.GetUsageAggregation)
	teams.GET("/:teamId/cogs", h.GetCOGSAggregation)

	schemas := v1.Group("/schemas")
	schemas.Use(jwtNoAppParam)
	schemas.GET("/usage-events", h.GetUsageEventSchemas)
	schemas.GET("/usage-events/:type", h.GetUsageEventSchemas)

	meta := v1.Group("/meta")
	meta.Use(jwtNoAppParam)
	meta.GET("/capabilities", h.GetCapabilities)

	bundles := v1.Group("/bundles")
	bundles.Use(adminAuth)
	bundles.POST("", h.CreateBundle)
	bundles.PATCH("/:id", h.UpdateBundle)

	contracts := v1.Group("/contracts")
	contracts.Use(adminAuth)
	contracts.POST("", h.CreateContract)
	contracts.PATCH("/:id", h.UpdateContract)
	contracts.PUT("/:id/overrides", h.ReplaceContractOverrides)

	invoices := v1.Group("/invoices")
	invoices.Use(adminAuth)
	invoices.POST("/:id/export", h.ExportInvoice)
	invoices.POST("/:id/mark-paid", h.MarkInvoicePaid)

	v1.POST("/stripe/webhook", h.StripeWebhook)

	return router
}

package http

import (
	"ekh_mining/internal/config"
	"ekh_mining/internal/http/handlers"
	"ekh_mining/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, limiter *middleware.RateLimiter, cfg *config.Config) {
	r.Use(middleware.RequestLog())
	r.Use(cors(cfg.AllowedOrigin))

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(h.Verifier))
	v1.Use(limiter.Limit("api", cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler) {
	// Session
	api.POST("/session", h.SignIn)
	api.DELETE("/session", h.SignOut)

	// Profile
	api.GET("/profile", h.GetProfile)
	api.POST("/profile/silent-refresh", h.SilentRefresh)
	api.GET("/profile/stream", h.ProfileStream)

	// Referral system
	referral := api.Group("/referral")
	{
		referral.GET("/code", h.ReferralCode)
		referral.POST("/claim", h.ClaimReferral)
	}

	// Presale purchases & mining
	api.GET("/purchases", h.ListPurchases)
	api.POST("/purchases/sync", h.SyncPurchases)
	api.POST("/mining/collect", h.CollectMining)
}

// CORS for production (frontend on different domain)
func cors(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (allowedOrigin == "" || origin == allowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

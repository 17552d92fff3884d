package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/celerix-dev/celerix-market/internal/config"
	"github.com/celerix-dev/celerix-market/pkg/schema"
)

// RouterConfig holds the settings NewRouter needs besides the handler.
type RouterConfig struct {
	CORSOrigin string
	RateLimit  config.RateLimitConfig
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	Log     zerolog.Logger
}

// NewRouter mounts every route on a new gin engine.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(cfg.Log), CORS(cfg.CORSOrigin))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/works", h.ListWorks)
		apiGroup.POST("/works", h.CreateWork)
		apiGroup.GET("/works/:id", h.GetWork)
		apiGroup.POST("/works/:id/purchase", h.PurchaseWork)
		apiGroup.GET("/works/:id/ancestry", h.Ancestry)
		apiGroup.GET("/works/:id/root", h.Root)
		apiGroup.GET("/works/:id/derivatives", h.Derivatives)
		apiGroup.GET("/works/:id/purchases", h.WorkPurchases)

		apiGroup.GET("/agents", h.ListAgents)
		apiGroup.GET("/agents/:id", h.GetAgent)
		apiGroup.GET("/agents/:id/revenue", h.AgentRevenue)
		apiGroup.GET("/agents/:id/stats", h.AgentStats)
		apiGroup.GET("/agents/:id/purchases", h.AgentPurchases)

		apiGroup.GET("/stats", h.MarketplaceStats)
	}

	limiter := NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	flows := r.Group("/api/flows", limiter.Middleware())
	{
		flows.POST("/create", h.CreateFlow)
		flows.POST("/music", h.MusicFlow)
		flows.POST("/derive", h.DeriveFlow)
		flows.POST("/purchase", h.PurchaseFlow)
		flows.POST("/simulate", h.SimulateFlow)
		flows.GET("/simulate", h.SimulateFlow)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "API route not found", Code: schema.CodeNotFound})
	})
	return r
}

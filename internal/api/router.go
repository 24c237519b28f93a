package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestLogger(h.logger))

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/api/info", h.info)
	r.GET("/rate-limit/status", h.rateLimitStatus)

	admin := r.Group("/cache")
	admin.GET("/stats", h.cacheStats)
	admin.GET("/debug", h.cacheDebug)
	admin.DELETE("/flush", h.cacheFlush)

	limited := r.Group("/api", h.Limiter.Middleware())
	limited.GET("/events", h.streamEvents)

	prices := limited.Group("/prices")
	prices.POST("/compare", h.compare)
	prices.POST("/single", h.single)
	prices.POST("/bulk-compare", h.bulkCompare)
	prices.GET("/retailers", h.retailers)
	prices.GET("/history/:productKey", h.history)

	monitor := prices.Group("/monitor")
	monitor.POST("/start", h.startMonitor)
	monitor.POST("/stop", h.stopMonitor)
	monitor.GET("/active", h.activeMonitors)

	return r
}

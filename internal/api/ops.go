package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	cacheState := "connected"
	if err := h.Cache.Store().Ping(ctx); err != nil {
		status = "degraded"
		cacheState = "unavailable: " + err.Error()
	}

	body := gin.H{
		"status":    status,
		"service":   "pricewatch-api",
		"version":   Version,
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"cache":     cacheState,
		"retailers": h.Registry.Len(),
		"monitors": gin.H{
			"active":    len(h.Monitor.Active("")),
			"scheduled": h.Monitor.Scheduled(),
		},
		"events": h.Hub.Stats(),
	}
	if h.Pool != nil {
		body["render_pool"] = h.Pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) rateLimitStatus(c *gin.Context) {
	body := gin.H{"client": h.Limiter.Status(c.ClientIP())}
	if h.Pacer != nil {
		body["retailers"] = h.Pacer.Status()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) cacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Cache.Store().Stats(c.Request.Context()))
}

func (h *Handler) cacheDebug(c *gin.Context) {
	ctx := c.Request.Context()
	store := h.Cache.Store()

	keys, err := store.Keys(ctx, c.DefaultQuery("pattern", "*"))
	if err != nil {
		h.fail(c, err, "failed to list cache keys")
		return
	}
	sort.Strings(keys)

	details := make([]gin.H, 0, len(keys))
	for _, key := range keys {
		ttl, err := store.TTL(ctx, key)
		if err != nil {
			continue
		}
		details = append(details, gin.H{
			"key":         key,
			"ttl_seconds": int(ttl.Seconds()),
			"expires_in":  ttl.String(),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"total_keys":  len(details),
		"cache_keys":  details,
		"cache_stats": store.Stats(ctx),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) cacheFlush(c *gin.Context) {
	if err := h.Cache.Store().Flush(c.Request.Context()); err != nil {
		h.fail(c, err, "failed to flush cache")
		return
	}
	h.logger.Warn().Str("client_ip", c.ClientIP()).Msg("Cache flushed")
	c.JSON(http.StatusOK, gin.H{
		"message":   "cache flushed successfully",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Pricewatch API",
		"version":     Version,
		"description": "Compares and monitors product prices across US and Brazilian retailers",
		"countries":   []string{"US", "BR"},
		"endpoints": map[string]string{
			"POST /api/prices/compare":         "Compare prices across retailers",
			"POST /api/prices/single":          "Price from one retailer",
			"POST /api/prices/bulk-compare":    "Compare up to 10 products",
			"GET /api/prices/retailers":        "Supported retailers",
			"POST /api/prices/monitor/start":   "Start monitoring a product",
			"POST /api/prices/monitor/stop":    "Stop monitoring a product",
			"GET /api/prices/monitor/active":   "Active monitors for an owner",
			"GET /api/prices/history/:product": "Recorded price history",
			"GET /api/events":                  "Server-sent price events",
			"GET /health":                      "Health check",
			"GET /metrics":                     "Prometheus metrics",
		},
	})
}

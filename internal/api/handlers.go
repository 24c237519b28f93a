// Package api is the HTTP surface of the price service.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"pricewatch-api/internal/events"
	"pricewatch-api/internal/models"
	"pricewatch-api/internal/registry"
	"pricewatch-api/internal/scrapers"
	"pricewatch-api/internal/services"
	"pricewatch-api/pkg/browser"
	"pricewatch-api/pkg/cache"
)

const Version = "2.0.0"

// Dependencies are the components the handlers serve. Pool and Pacer may
// be nil when no page-scrape retailers are configured.
type Dependencies struct {
	Aggregator *services.Aggregator
	Monitor    *services.Monitor
	History    *services.HistoryService
	Registry   *registry.Registry
	Cache      *cache.PriceCache
	Hub        *events.Hub
	Pool       *browser.Pool
	Pacer      *scrapers.Pacer
	Limiter    *ClientLimiter
	Logger     zerolog.Logger

	// KeepAlive is the SSE comment interval; zero means 15s.
	KeepAlive time.Duration
}

type Handler struct {
	Dependencies
	logger  zerolog.Logger
	started time.Time
}

func NewHandler(deps Dependencies) *Handler {
	if deps.Limiter == nil {
		deps.Limiter = NewClientLimiter(0, 0)
	}
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = 15 * time.Second
	}
	return &Handler{
		Dependencies: deps,
		logger:       deps.Logger.With().Str("component", "api").Logger(),
		started:      time.Now(),
	}
}

func (h *Handler) compare(c *gin.Context) {
	var req models.CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "searchTerm is required", err)
		return
	}
	country, err := models.ParseCountry(req.Country)
	if err != nil {
		badRequest(c, "unsupported country", err)
		return
	}

	resp, err := h.Aggregator.Compare(c.Request.Context(), req.SearchTerm, services.CompareOptions{
		ProductKey: req.ProductKey,
		Country:    country,
	})
	if err != nil {
		h.fail(c, err, "price comparison failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) single(c *gin.Context) {
	var req models.SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "retailer is required", err)
		return
	}

	price, err := h.Aggregator.Single(c.Request.Context(), req.Retailer, req.ProductURL, req.SearchTerm)
	if err != nil {
		h.fail(c, err, "failed to get price")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"retailer":  req.Retailer,
		"price":     price,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) bulkCompare(c *gin.Context) {
	var req models.BulkCompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid bulk request", err)
		return
	}
	country, err := models.ParseCountry(req.Country)
	if err != nil {
		badRequest(c, "unsupported country", err)
		return
	}

	items, err := h.Aggregator.Bulk(c.Request.Context(), req.Products, country)
	if err != nil {
		h.fail(c, err, "bulk comparison failed")
		return
	}
	succeeded := 0
	for _, item := range items {
		if item.Success {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results":            items,
		"total_products":     len(items),
		"successful_results": succeeded,
	})
}

func (h *Handler) retailers(c *gin.Context) {
	country, err := models.ParseCountry(c.Query("country"))
	if err != nil {
		badRequest(c, "unsupported country", err)
		return
	}

	list := h.Registry.List(country)
	grouped := map[models.Country][]models.RetailerConfig{}
	for _, r := range list {
		grouped[r.Country] = append(grouped[r.Country], r)
	}
	c.JSON(http.StatusOK, gin.H{
		"retailers": grouped,
		"total":     len(list),
	})
}

func (h *Handler) startMonitor(c *gin.Context) {
	var req models.StartMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "productKey, searchTerm and ownerId are required", err)
		return
	}

	sub, err := h.Monitor.StartMonitoring(req.ProductKey, req.SearchTerm, req.OwnerID, req.Threshold)
	if err != nil {
		h.fail(c, err, "failed to start monitoring")
		return
	}
	c.JSON(http.StatusOK, models.StartMonitorResponse{SubscriptionID: sub.ID, Active: sub.Active})
}

func (h *Handler) stopMonitor(c *gin.Context) {
	var req models.StopMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "productKey and ownerId are required", err)
		return
	}

	h.Monitor.StopMonitoring(req.ProductKey, req.OwnerID)
	c.JSON(http.StatusOK, models.StopMonitorResponse{Active: false})
}

func (h *Handler) activeMonitors(c *gin.Context) {
	ownerID := c.Query("ownerId")
	if ownerID == "" {
		badRequest(c, "ownerId is required", nil)
		return
	}
	subs := h.Monitor.Active(ownerID)
	c.JSON(http.StatusOK, gin.H{
		"monitors": subs,
		"count":    len(subs),
	})
}

func (h *Handler) history(c *gin.Context) {
	resp, err := h.History.History(c.Request.Context(), models.HistoryRequest{
		ProductKey: c.Param("productKey"),
		Timeframe:  c.DefaultQuery("timeframe", services.DefaultTimeframe),
		Retailer:   c.Query("retailer"),
	})
	if err != nil {
		h.fail(c, err, "failed to get price history")
		return
	}
	c.JSON(http.StatusOK, resp)
}

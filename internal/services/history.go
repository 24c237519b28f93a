package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/cache"
)

const DefaultTimeframe = "30d"

var timeframes = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
	"1y":  365 * 24 * time.Hour,
}

// Timeframes lists the accepted timeframe names, shortest first.
func Timeframes() []string {
	names := make([]string, 0, len(timeframes))
	for name := range timeframes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return timeframes[names[i]] < timeframes[names[j]] })
	return names
}

type HistoryService struct {
	cache  *cache.PriceCache
	now    func() time.Time
	logger zerolog.Logger
}

func NewHistoryService(priceCache *cache.PriceCache, logger zerolog.Logger) *HistoryService {
	return &HistoryService{
		cache:  priceCache,
		now:    time.Now,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

// History returns the recorded points for a product over the timeframe,
// oldest first. Results are cached for the history TTL.
func (h *HistoryService) History(ctx context.Context, req models.HistoryRequest) (*models.HistoryResponse, error) {
	if req.ProductKey == "" {
		return nil, &AggregationError{Reason: "product key is required"}
	}
	if err := models.ValidateProductKey(req.ProductKey); err != nil {
		return nil, err
	}
	if req.Timeframe == "" {
		req.Timeframe = DefaultTimeframe
	}
	window, ok := timeframes[req.Timeframe]
	if !ok {
		return nil, fmt.Errorf("%w %q: use one of %v", ErrInvalidTimeframe, req.Timeframe, Timeframes())
	}

	key := cache.HistoryResultKey(req.ProductKey, req.Timeframe, req.Retailer)
	var cached []models.HistoryPoint
	err := h.cache.Get(ctx, key, &cached)
	if err == nil {
		return &models.HistoryResponse{
			ProductKey: req.ProductKey,
			Timeframe:  req.Timeframe,
			History:    cached,
			FromCache:  true,
		}, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		h.logger.Warn().Err(err).Str("key", key).Msg("History cache read failed")
	}

	points, err := h.cache.HistoryPoints(ctx, req.ProductKey, req.Retailer, h.now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load history for %s: %w", req.ProductKey, err)
	}
	if err := h.cache.Set(ctx, key, points, h.cache.Config().HistoryTTL); err != nil {
		h.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache history")
	}

	return &models.HistoryResponse{
		ProductKey: req.ProductKey,
		Timeframe:  req.Timeframe,
		History:    points,
	}, nil
}

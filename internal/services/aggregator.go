package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"pricewatch-api/internal/events"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/cache"
	"pricewatch-api/pkg/utils"
)

const (
	MaxBulkProducts   = 10
	bulkConcurrency   = 3
	noOffersWarning   = "no retailer returned a price for this product"
	defaultGraceDelay = 5 * time.Second
)

// Fetcher resolves a search term or product URL to one retailer's offer.
type Fetcher interface {
	Fetch(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (models.ProductPrice, error)
	FetchURL(ctx context.Context, cfg models.RetailerConfig, productURL string) (models.ProductPrice, error)
}

// RetailerSource is the read side of the registry.
type RetailerSource interface {
	Get(name string) (models.RetailerConfig, error)
	List(country models.Country) []models.RetailerConfig
}

type AggregatorConfig struct {
	Concurrency int
	TaskTimeout time.Duration
	// Deadline bounds a whole run. Tasks run concurrently so it only needs
	// to cover the slowest task.
	Deadline time.Duration
}

func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Concurrency: 8,
		TaskTimeout: 40 * time.Second,
		Deadline:    40*time.Second + defaultGraceDelay,
	}
}

type CompareOptions struct {
	ProductKey string
	Country    models.Country
	SkipCache  bool
}

type Aggregator struct {
	retailers RetailerSource
	fetcher   Fetcher
	cache     *cache.PriceCache
	emitter   events.Emitter
	config    AggregatorConfig
	logger    zerolog.Logger
}

func NewAggregator(retailers RetailerSource, fetcher Fetcher, priceCache *cache.PriceCache, emitter events.Emitter, cfg AggregatorConfig, logger zerolog.Logger) *Aggregator {
	def := DefaultAggregatorConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.Deadline < cfg.TaskTimeout {
		cfg.Deadline = cfg.TaskTimeout + defaultGraceDelay
	}
	if emitter == nil {
		emitter = events.LogEmitter{Logger: logger}
	}
	return &Aggregator{
		retailers: retailers,
		fetcher:   fetcher,
		cache:     priceCache,
		emitter:   emitter,
		config:    cfg,
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// Compare serves a comparison from cache when possible and otherwise runs a
// fresh aggregation, caching the result.
func (a *Aggregator) Compare(ctx context.Context, searchTerm string, opts CompareOptions) (*models.CompareResponse, error) {
	searchTerm = strings.TrimSpace(searchTerm)
	if searchTerm == "" {
		return nil, &AggregationError{Reason: "search term is required"}
	}
	productKey := opts.ProductKey
	if productKey == "" {
		productKey = utils.ProductKey(searchTerm)
	}

	if !opts.SkipCache {
		cached, err := a.cache.GetComparison(ctx, searchTerm, opts.Country)
		switch {
		case err == nil && cached.ProductKey == productKey:
			a.logger.Info().Str("search_term", searchTerm).Str("product_key", productKey).Msg("Comparison cache HIT")
			comparisonRequests.WithLabelValues("cache").Inc()
			return &models.CompareResponse{ComparisonResult: cached, FromCache: true, Warning: warningFor(cached)}, nil
		case err != nil && !errors.Is(err, cache.ErrMiss):
			a.logger.Warn().Err(err).Str("search_term", searchTerm).Msg("Comparison cache read failed")
		default:
			a.logger.Debug().Str("search_term", searchTerm).Msg("Comparison cache MISS")
		}
	}
	comparisonRequests.WithLabelValues("live").Inc()

	result, err := a.Aggregate(ctx, productKey, searchTerm, opts.Country)
	if err != nil {
		return nil, err
	}
	if err := a.cache.SetComparison(ctx, opts.Country, result); err != nil {
		a.logger.Warn().Err(err).Str("product_key", productKey).Msg("Failed to cache comparison")
	}
	return &models.CompareResponse{ComparisonResult: result, Warning: warningFor(result)}, nil
}

func warningFor(result *models.ComparisonResult) string {
	if result.RetailerCount == 0 {
		return noOffersWarning
	}
	return ""
}

// Aggregate queries every retailer for the country concurrently and waits
// for all of them. Retailer failures only shrink the result.
func (a *Aggregator) Aggregate(ctx context.Context, productKey, searchTerm string, country models.Country) (*models.ComparisonResult, error) {
	searchTerm = strings.TrimSpace(searchTerm)
	if searchTerm == "" {
		return nil, &AggregationError{Reason: "search term is required"}
	}
	if productKey == "" {
		productKey = utils.ProductKey(searchTerm)
	}
	if err := models.ValidateProductKey(productKey); err != nil {
		return nil, &AggregationError{Reason: err.Error()}
	}
	retailers := a.retailers.List(country)
	if len(retailers) == 0 {
		reason := "no retailers configured"
		if country != "" {
			reason = fmt.Sprintf("no retailers configured for %s", country)
		}
		return nil, &AggregationError{Reason: reason}
	}

	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, a.config.Deadline)
	defer cancel()

	found := make([]*models.ProductPrice, len(retailers))
	var g errgroup.Group
	g.SetLimit(a.config.Concurrency)
	for i, cfg := range retailers {
		g.Go(func() error {
			if price, ok := a.fetchOne(runCtx, productKey, searchTerm, cfg); ok {
				found[i] = &price
			}
			return nil
		})
	}
	_ = g.Wait()

	prices := make([]models.ProductPrice, 0, len(found))
	for _, p := range found {
		if p != nil {
			prices = append(prices, *p)
		}
	}

	result := models.NewComparisonResult(productKey, searchTerm, prices)
	result.Country = country
	result.Attempted = len(retailers)
	result.Duration = time.Since(start).Round(time.Millisecond).String()

	aggregationDuration.Observe(time.Since(start).Seconds())
	aggregationOffers.Observe(float64(result.RetailerCount))

	a.emitter.Publish(events.TopicComparisonComplete, models.ComparisonSummary{
		ProductKey:  productKey,
		SearchTerm:  searchTerm,
		PriceCount:  result.RetailerCount,
		LowestPrice: result.LowestPrice,
	})

	a.logger.Info().
		Str("product_key", productKey).
		Str("search_term", searchTerm).
		Int("retailers", len(retailers)).
		Int("offers", result.RetailerCount).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")
	return result, nil
}

func (a *Aggregator) fetchOne(ctx context.Context, productKey, searchTerm string, cfg models.RetailerConfig) (price models.ProductPrice, ok bool) {
	log := a.logger.With().Str("retailer", cfg.Name).Str("product_key", productKey).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in retailer fetch")
			ok = false
		}
	}()

	taskCtx, cancel := context.WithTimeout(ctx, a.config.TaskTimeout)
	defer cancel()

	price, err := a.fetcher.Fetch(taskCtx, cfg, searchTerm)
	if err != nil {
		log.Warn().Err(err).Msg("Retailer fetch failed")
		return models.ProductPrice{}, false
	}
	if price.Retailer == "" {
		price.Retailer = cfg.Name
	}
	if price.LastUpdated.IsZero() {
		price.LastUpdated = time.Now()
	}

	// The run deadline may already be spent; cache writes should still land.
	writeCtx := context.WithoutCancel(ctx)
	if err := a.cache.SetPrice(writeCtx, productKey, price); err != nil {
		log.Warn().Err(err).Msg("Failed to cache price")
	}
	if err := a.cache.AppendHistory(writeCtx, productKey, price); err != nil {
		log.Warn().Err(err).Msg("Failed to record price history")
	}
	a.emitter.Publish(events.TopicPriceUpdate, models.PriceUpdate{
		ProductKey: productKey,
		Retailer:   price.Retailer,
		Price:      price.Price,
		Currency:   price.Currency,
	})
	log.Debug().Str("price", price.Price.String()).Msg("Retailer price fetched")
	return price, true
}

// Single looks up one retailer, by product URL when given and by search
// term otherwise.
func (a *Aggregator) Single(ctx context.Context, retailer, productURL, searchTerm string) (models.ProductPrice, error) {
	cfg, err := a.retailers.Get(retailer)
	if err != nil {
		return models.ProductPrice{}, err
	}

	taskCtx, cancel := context.WithTimeout(ctx, a.config.TaskTimeout)
	defer cancel()

	switch {
	case strings.TrimSpace(productURL) != "":
		return a.fetcher.FetchURL(taskCtx, cfg, strings.TrimSpace(productURL))
	case strings.TrimSpace(searchTerm) != "":
		return a.fetcher.Fetch(taskCtx, cfg, strings.TrimSpace(searchTerm))
	default:
		return models.ProductPrice{}, &AggregationError{Reason: "productUrl or searchTerm is required"}
	}
}

// Bulk compares several products, a few at a time. Per-product failures are
// reported in the item, not as an error.
func (a *Aggregator) Bulk(ctx context.Context, products []models.BulkProduct, country models.Country) ([]models.BulkCompareItem, error) {
	if len(products) == 0 {
		return nil, &AggregationError{Reason: "products must not be empty"}
	}
	if len(products) > MaxBulkProducts {
		return nil, &AggregationError{Reason: fmt.Sprintf("at most %d products per bulk request", MaxBulkProducts)}
	}

	items := make([]models.BulkCompareItem, len(products))
	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for i, p := range products {
		g.Go(func() error {
			item := models.BulkCompareItem{ProductKey: p.ProductKey, SearchTerm: p.SearchTerm}
			resp, err := a.Compare(ctx, p.SearchTerm, CompareOptions{ProductKey: p.ProductKey, Country: country})
			if err != nil {
				item.Error = err.Error()
			} else {
				item.Success = true
				item.Result = resp.ComparisonResult
				item.ProductKey = resp.ProductKey
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

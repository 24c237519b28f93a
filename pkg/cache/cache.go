package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/utils"
)

type Config struct {
	PriceTTL         time.Duration
	ComparisonTTL    time.Duration
	HistoryTTL       time.Duration
	HistoryRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		PriceTTL:         30 * time.Minute,
		ComparisonTTL:    30 * time.Minute,
		HistoryTTL:       time.Hour,
		HistoryRetention: 365 * 24 * time.Hour,
	}
}

// PriceCache layers typed price, comparison and history records over a Store.
// It is the only place the monitor reads "last known" prices from.
type PriceCache struct {
	store  Store
	config Config
	logger zerolog.Logger
}

func NewPriceCache(store Store, cfg Config, logger zerolog.Logger) *PriceCache {
	def := DefaultConfig()
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = def.PriceTTL
	}
	if cfg.ComparisonTTL <= 0 {
		cfg.ComparisonTTL = def.ComparisonTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = def.HistoryTTL
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = def.HistoryRetention
	}
	return &PriceCache{store: store, config: cfg, logger: logger}
}

func (c *PriceCache) Store() Store   { return c.store }
func (c *PriceCache) Config() Config { return c.config }

func PriceKey(productKey, retailer string) string {
	return fmt.Sprintf("price:%s:%s", productKey, retailer)
}

// ComparisonKey is keyed on the normalized term, so "Widget" and " widget"
// share an entry just as they share a product key.
func ComparisonKey(searchTerm string, country models.Country) string {
	scope := string(country)
	if scope == "" {
		scope = "all"
	}
	term := utils.NormalizeSearchTerm(searchTerm)
	return fmt.Sprintf("comparison:%s:%s", base64.StdEncoding.EncodeToString([]byte(term)), scope)
}

func HistoryPointKey(productKey, retailer string, at time.Time) string {
	return fmt.Sprintf("history:%s:%s:%d", productKey, retailer, at.UnixNano())
}

func HistoryResultKey(productKey, timeframe, retailer string) string {
	if retailer == "" {
		retailer = "all"
	}
	return fmt.Sprintf("price_history:%s:%s:%s", productKey, timeframe, retailer)
}

// Get decodes the JSON value stored under key into dst.
func (c *PriceCache) Get(ctx context.Context, key string, dst interface{}) error {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			cacheMisses.WithLabelValues(keyKind(key)).Inc()
		}
		return err
	}
	cacheHits.WithLabelValues(keyKind(key)).Inc()
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set stores value as JSON under key for ttl.
func (c *PriceCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, data, ttl)
}

func (c *PriceCache) Delete(ctx context.Context, keys ...string) error {
	return c.store.Delete(ctx, keys...)
}

func (c *PriceCache) SetPrice(ctx context.Context, productKey string, price models.ProductPrice) error {
	if err := models.ValidateProductKey(productKey); err != nil {
		return err
	}
	return c.Set(ctx, PriceKey(productKey, price.Retailer), price, c.config.PriceTTL)
}

func (c *PriceCache) GetPrice(ctx context.Context, productKey, retailer string) (models.ProductPrice, error) {
	var price models.ProductPrice
	if err := models.ValidateProductKey(productKey); err != nil {
		return price, err
	}
	err := c.Get(ctx, PriceKey(productKey, retailer), &price)
	return price, err
}

// GetAllForProduct returns every unexpired per-retailer price for the
// product, cheapest first.
func (c *PriceCache) GetAllForProduct(ctx context.Context, productKey string) ([]models.ProductPrice, error) {
	if err := models.ValidateProductKey(productKey); err != nil {
		return nil, err
	}
	keys, err := c.store.Keys(ctx, "price:"+escapePattern(productKey)+":*")
	if err != nil {
		return nil, err
	}

	prices := make([]models.ProductPrice, 0, len(keys))
	for _, key := range keys {
		var price models.ProductPrice
		if err := c.Get(ctx, key, &price); err != nil {
			if !errors.Is(err, ErrMiss) {
				c.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable cached price")
			}
			continue
		}
		prices = append(prices, price)
	}

	sort.SliceStable(prices, func(i, j int) bool {
		return prices[i].Price.LessThan(prices[j].Price)
	})
	return prices, nil
}

func (c *PriceCache) SetComparison(ctx context.Context, country models.Country, result *models.ComparisonResult) error {
	return c.Set(ctx, ComparisonKey(result.SearchTerm, country), result, c.config.ComparisonTTL)
}

func (c *PriceCache) GetComparison(ctx context.Context, searchTerm string, country models.Country) (*models.ComparisonResult, error) {
	var result models.ComparisonResult
	if err := c.Get(ctx, ComparisonKey(searchTerm, country), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AppendHistory records one observed price. Points live for the configured
// retention and are never overwritten.
func (c *PriceCache) AppendHistory(ctx context.Context, productKey string, price models.ProductPrice) error {
	if err := models.ValidateProductKey(productKey); err != nil {
		return err
	}
	at := price.LastUpdated
	if at.IsZero() {
		at = time.Now()
	}
	point := models.HistoryPoint{
		Timestamp: at,
		Price:     price.Price,
		Retailer:  price.Retailer,
		Currency:  price.Currency,
	}
	return c.Set(ctx, HistoryPointKey(productKey, price.Retailer, at), point, c.config.HistoryRetention)
}

// HistoryPoints returns recorded points at or after since, oldest first.
// An empty retailer selects all retailers.
func (c *PriceCache) HistoryPoints(ctx context.Context, productKey, retailer string, since time.Time) ([]models.HistoryPoint, error) {
	if err := models.ValidateProductKey(productKey); err != nil {
		return nil, err
	}
	pattern := "history:" + escapePattern(productKey) + ":*"
	if retailer != "" {
		pattern = "history:" + escapePattern(productKey) + ":" + escapePattern(retailer) + ":*"
	}
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	points := make([]models.HistoryPoint, 0, len(keys))
	for _, key := range keys {
		if ts, ok := historyKeyTime(key); ok && ts.Before(since) {
			continue
		}
		var point models.HistoryPoint
		if err := c.Get(ctx, key, &point); err != nil {
			continue
		}
		if point.Timestamp.Before(since) {
			continue
		}
		points = append(points, point)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}

func historyKeyTime(key string) (time.Time, bool) {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(key[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}

func keyKind(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return "other"
}

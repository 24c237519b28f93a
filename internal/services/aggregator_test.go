package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pricewatch-api/internal/events"
	"pricewatch-api/internal/models"
	"pricewatch-api/internal/registry"
	"pricewatch-api/pkg/cache"
)

var errShopDown = errors.New("shop down")

// fakeFetcher answers from a per-retailer price table. Retailers missing
// from the table fail.
type fakeFetcher struct {
	mu     sync.Mutex
	prices map[string]string
	hang   map[string]bool
	calls  atomic.Int32
	urls   []string

	entered chan struct{}
	release chan struct{}
}

func newFakeFetcher(prices map[string]string) *fakeFetcher {
	return &fakeFetcher{prices: prices, hang: map[string]bool{}}
}

func (f *fakeFetcher) setPrice(retailer, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[retailer] = amount
}

func (f *fakeFetcher) Fetch(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (models.ProductPrice, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	amount, ok := f.prices[cfg.Name]
	hang := f.hang[cfg.Name]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return models.ProductPrice{}, ctx.Err()
	}
	if !ok {
		return models.ProductPrice{}, errShopDown
	}
	return models.ProductPrice{
		Retailer:     cfg.Name,
		Price:        decimal.RequireFromString(amount),
		Currency:     cfg.Country.Currency(),
		Availability: models.InStock,
		SourceURL:    cfg.BaseURL + "/item",
		LastUpdated:  time.Now(),
	}, nil
}

func (f *fakeFetcher) FetchURL(ctx context.Context, cfg models.RetailerConfig, productURL string) (models.ProductPrice, error) {
	f.mu.Lock()
	f.urls = append(f.urls, productURL)
	f.mu.Unlock()
	return f.Fetch(ctx, cfg, "")
}

type published struct {
	topic   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []published
}

func (e *recordingEmitter) Publish(topic string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, published{topic: topic, payload: payload})
}

func (e *recordingEmitter) on(topic string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for _, ev := range e.events {
		if ev.topic == topic {
			out = append(out, ev.payload)
		}
	}
	return out
}

func testRegistry(t *testing.T, names ...string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, name := range names {
		require.NoError(t, reg.Register(models.NewScrapeRetailer(name, models.CountryUS, "https://"+name+".example", 60,
			models.ScrapeAccess{Rules: models.ExtractionRules{Price: ".price"}}, nil)))
	}
	return reg
}

type aggregatorFixture struct {
	agg     *Aggregator
	fetcher *fakeFetcher
	cache   *cache.PriceCache
	emitter *recordingEmitter
}

func newAggregatorFixture(t *testing.T, prices map[string]string, retailers ...string) aggregatorFixture {
	t.Helper()
	fetcher := newFakeFetcher(prices)
	pc := cache.NewPriceCache(cache.NewMemoryStore(), cache.Config{}, zerolog.Nop())
	emitter := &recordingEmitter{}
	agg := NewAggregator(testRegistry(t, retailers...), fetcher, pc, emitter,
		AggregatorConfig{Concurrency: 4, TaskTimeout: time.Second}, zerolog.Nop())
	return aggregatorFixture{agg: agg, fetcher: fetcher, cache: pc, emitter: emitter}
}

func TestAggregateSortsAndComputesStats(t *testing.T) {
	fx := newAggregatorFixture(t, map[string]string{"ShopB": "12.50", "ShopA": "10.00"}, "ShopB", "ShopA", "ShopC")

	result, err := fx.agg.Aggregate(context.Background(), "", "widget", "")
	require.NoError(t, err)

	require.Len(t, result.Prices, 2)
	assert.True(t, result.Prices[0].Price.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, result.Prices[1].Price.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, result.Prices[0].IsLowest)
	assert.False(t, result.Prices[1].IsLowest)
	assert.True(t, result.LowestPrice.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, result.HighestPrice.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, result.AveragePrice.Equal(decimal.RequireFromString("11.25")))
	assert.Equal(t, 2, result.RetailerCount)
	assert.Equal(t, 3, result.Attempted)
	assert.NotEmpty(t, result.ProductKey)
}

func TestAggregateToleratesPartialFailure(t *testing.T) {
	prices := map[string]string{"S1": "5.00", "S3": "7.00", "S5": "6.00"}
	fx := newAggregatorFixture(t, prices, "S1", "S2", "S3", "S4", "S5")

	result, err := fx.agg.Aggregate(context.Background(), "x", "x", "")
	require.NoError(t, err)
	assert.Len(t, result.Prices, 3)
	assert.Equal(t, int32(5), fx.fetcher.calls.Load())

	for i := 1; i < len(result.Prices); i++ {
		assert.True(t, result.Prices[i-1].Price.LessThanOrEqual(result.Prices[i].Price))
	}
}

func TestAggregateWritesCacheAndPublishes(t *testing.T) {
	ctx := context.Background()
	fx := newAggregatorFixture(t, map[string]string{"ShopA": "10.00", "ShopB": "12.50"}, "ShopA", "ShopB", "ShopC")

	_, err := fx.agg.Aggregate(ctx, "widget-key", "widget", "")
	require.NoError(t, err)

	cached, err := fx.cache.GetAllForProduct(ctx, "widget-key")
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "ShopA", cached[0].Retailer)

	points, err := fx.cache.HistoryPoints(ctx, "widget-key", "", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, points, 2)

	assert.Len(t, fx.emitter.on(events.TopicPriceUpdate), 2)
	summaries := fx.emitter.on(events.TopicComparisonComplete)
	require.Len(t, summaries, 1)
	summary := summaries[0].(models.ComparisonSummary)
	assert.Equal(t, "widget-key", summary.ProductKey)
	assert.Equal(t, 2, summary.PriceCount)
	assert.True(t, summary.LowestPrice.Equal(decimal.NewFromInt(10)))
}

func TestAggregateTimesOutSlowRetailer(t *testing.T) {
	fx := newAggregatorFixture(t, map[string]string{"Fast": "3.00"}, "Fast", "Slow")
	fx.agg.config.TaskTimeout = 50 * time.Millisecond
	fx.fetcher.hang["Slow"] = true

	start := time.Now()
	result, err := fx.agg.Aggregate(context.Background(), "", "widget", "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, result.Prices, 1)
	assert.Equal(t, "Fast", result.Prices[0].Retailer)
}

func TestAggregateNoOffersIsNotAnError(t *testing.T) {
	fx := newAggregatorFixture(t, map[string]string{}, "ShopA", "ShopB")

	resp, err := fx.agg.Compare(context.Background(), "widget", CompareOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Prices)
	assert.Equal(t, 0, resp.RetailerCount)
	assert.Nil(t, resp.LowestPrice)
	assert.Nil(t, resp.HighestPrice)
	assert.Nil(t, resp.AveragePrice)
	assert.NotEmpty(t, resp.Warning)
}

func TestAggregateRejectsInvalidInput(t *testing.T) {
	fx := newAggregatorFixture(t, nil, "ShopA")

	_, err := fx.agg.Compare(context.Background(), "   ", CompareOptions{})
	assert.ErrorIs(t, err, ErrAggregation)

	empty := NewAggregator(registry.New(), fx.fetcher, fx.cache, nil, AggregatorConfig{}, zerolog.Nop())
	_, err = empty.Aggregate(context.Background(), "", "widget", "")
	var aggErr *AggregationError
	require.ErrorAs(t, err, &aggErr)
	assert.Contains(t, aggErr.Reason, "no retailers")

	_, err = fx.agg.Aggregate(context.Background(), "", "widget", models.CountryBR)
	assert.ErrorIs(t, err, ErrAggregation)

	_, err = fx.agg.Compare(context.Background(), "widget", CompareOptions{ProductKey: "tv:4k"})
	assert.ErrorIs(t, err, ErrAggregation)
	assert.Equal(t, int32(0), fx.fetcher.calls.Load())
}

func TestCompareServesFromCache(t *testing.T) {
	ctx := context.Background()
	fx := newAggregatorFixture(t, map[string]string{"ShopA": "10.00"}, "ShopA")

	first, err := fx.agg.Compare(ctx, "widget", CompareOptions{})
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := fx.agg.Compare(ctx, " Widget ", CompareOptions{})
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ProductKey, second.ProductKey)
	assert.Equal(t, int32(1), fx.fetcher.calls.Load())

	fresh, err := fx.agg.Compare(ctx, "widget", CompareOptions{SkipCache: true})
	require.NoError(t, err)
	assert.False(t, fresh.FromCache)
	assert.Equal(t, int32(2), fx.fetcher.calls.Load())
}

func TestSingleLookup(t *testing.T) {
	ctx := context.Background()
	fx := newAggregatorFixture(t, map[string]string{"ShopA": "9.99"}, "ShopA")

	price, err := fx.agg.Single(ctx, "ShopA", "https://ShopA.example/item/1", "")
	require.NoError(t, err)
	assert.True(t, price.Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, []string{"https://ShopA.example/item/1"}, fx.fetcher.urls)

	_, err = fx.agg.Single(ctx, "ShopA", "", "widget")
	require.NoError(t, err)

	_, err = fx.agg.Single(ctx, "Nope", "", "widget")
	assert.ErrorIs(t, err, registry.ErrUnknownRetailer)

	_, err = fx.agg.Single(ctx, "ShopA", "", "")
	assert.ErrorIs(t, err, ErrAggregation)
}

func TestBulkCompare(t *testing.T) {
	ctx := context.Background()
	fx := newAggregatorFixture(t, map[string]string{"ShopA": "10.00"}, "ShopA")

	items, err := fx.agg.Bulk(ctx, []models.BulkProduct{
		{ProductKey: "one", SearchTerm: "widget"},
		{ProductKey: "two", SearchTerm: ""},
	}, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Success)
	assert.Equal(t, "one", items[0].ProductKey)
	assert.Equal(t, 1, items[0].Result.RetailerCount)
	assert.False(t, items[1].Success)
	assert.NotEmpty(t, items[1].Error)

	_, err = fx.agg.Bulk(ctx, nil, "")
	assert.ErrorIs(t, err, ErrAggregation)

	tooMany := make([]models.BulkProduct, MaxBulkProducts+1)
	_, err = fx.agg.Bulk(ctx, tooMany, "")
	assert.ErrorIs(t, err, ErrAggregation)
}

package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"pricewatch-api/internal/config"
	"pricewatch-api/internal/events"
	"pricewatch-api/internal/registry"
	"pricewatch-api/internal/scrapers"
	"pricewatch-api/internal/services"
	"pricewatch-api/pkg/browser"
	"pricewatch-api/pkg/cache"
)

// app holds the process-wide components. Everything is built here and torn
// down in Close; nothing is a package global.
type app struct {
	registry   *registry.Registry
	store      cache.Store
	cache      *cache.PriceCache
	pool       *browser.Pool
	pacer      *scrapers.Pacer
	hub        *events.Hub
	aggregator *services.Aggregator
	monitor    *services.Monitor
	history    *services.HistoryService
	logger     zerolog.Logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	reg, err := registry.Default(registry.APIKeys{
		Walmart: cfg.Retailers.WalmartAPIKey,
		Ebay:    cfg.Retailers.EbayAPIKey,
	}, logger.With().Str("component", "registry").Logger())
	if err != nil {
		return nil, err
	}

	store := openStore(ctx, cfg.Cache, logger)
	priceCache := cache.NewPriceCache(store, cache.Config{
		PriceTTL:         priceTTL(cfg, logger),
		ComparisonTTL:    cfg.Cache.ComparisonTTL,
		HistoryTTL:       cfg.Cache.HistoryTTL,
		HistoryRetention: cfg.Cache.HistoryRetention,
	}, logger.With().Str("component", "cache").Logger())

	factory := openRenderer(cfg, logger)
	pool := browser.NewPool(factory, browser.PoolConfig{
		Capacity: cfg.Pool.Capacity,
		Ceiling:  cfg.Pool.Ceiling,
	}, logger.With().Str("component", "render_pool").Logger())

	pacer := scrapers.NewPacer()
	fetcher := scrapers.NewSourceFetcher(pool, scrapers.DefaultVendors(cfg.Aggregator.TaskTimeout), pacer, scrapers.Config{
		NavigationTimeout: cfg.Aggregator.NavigationTimeout,
		SelectorTimeout:   cfg.Aggregator.SelectorTimeout,
	}, logger.With().Str("component", "fetcher").Logger())

	hub := events.NewHub(64, logger.With().Str("component", "events").Logger())
	aggregator := services.NewAggregator(reg, fetcher, priceCache, hub, services.AggregatorConfig{
		Concurrency: cfg.Aggregator.Concurrency,
		TaskTimeout: cfg.Aggregator.TaskTimeout,
	}, logger)
	monitor := services.NewMonitor(aggregator, priceCache, hub, services.MonitorConfig{
		Interval:         cfg.Monitor.Interval,
		DefaultThreshold: cfg.Monitor.DefaultThreshold,
		SubscriptionTTL:  cfg.Monitor.SubscriptionTTL,
		TickTimeout:      cfg.Aggregator.TaskTimeout + time.Minute,
	}, logger)

	return &app{
		registry:   reg,
		store:      store,
		cache:      priceCache,
		pool:       pool,
		pacer:      pacer,
		hub:        hub,
		aggregator: aggregator,
		monitor:    monitor,
		history:    services.NewHistoryService(priceCache, logger),
		logger:     logger,
	}, nil
}

// openStore connects to Redis and falls back to the in-process store when
// Redis is not reachable.
func openStore(ctx context.Context, cfg config.CacheConfig, logger zerolog.Logger) cache.Store {
	if cfg.Backend == "memory" {
		logger.Info().Msg("Using in-memory cache")
		return cache.NewMemoryStore()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := cache.NewRedisStore(pingCtx, cfg.RedisURL, cfg.RedisDB, logger.With().Str("component", "redis").Logger())
	if err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
		return cache.NewMemoryStore()
	}
	logger.Info().Int("db", cfg.RedisDB).Msg("Redis cache connected")
	return store
}

// openRenderer starts headless Chrome, or the static renderer when Chrome is
// not wanted or will not start.
func openRenderer(cfg *config.Config, logger zerolog.Logger) browser.SessionFactory {
	static := browser.NewStaticFactory(cfg.Pool.UserAgent, cfg.Aggregator.NavigationTimeout)
	if cfg.Pool.Renderer == "static" {
		logger.Info().Msg("Using static page renderer")
		return static
	}
	chrome, err := browser.NewChromeFactory(browser.ChromeOptions{
		ExecPath:  cfg.Pool.ChromePath,
		Headless:  cfg.Pool.Headless,
		UserAgent: cfg.Pool.UserAgent,
	}, logger.With().Str("component", "chrome").Logger())
	if err != nil {
		logger.Warn().Err(err).Msg("Chrome failed to start, falling back to static page renderer")
		return static
	}
	return chrome
}

// priceTTL keeps last known prices alive across at least one monitor
// interval so every tick has something to compare against.
func priceTTL(cfg *config.Config, logger zerolog.Logger) time.Duration {
	floor := cfg.Monitor.Interval + cfg.Aggregator.TaskTimeout
	if cfg.Cache.PriceTTL >= floor {
		return cfg.Cache.PriceTTL
	}
	logger.Warn().
		Dur("price_ttl", cfg.Cache.PriceTTL).
		Dur("monitor_interval", cfg.Monitor.Interval).
		Dur("effective_ttl", floor).
		Msg("Price TTL shorter than monitor interval, extending")
	return floor
}

// Close stops the monitor, then the pool (which closes its session factory)
// and the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.monitor.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.pool.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

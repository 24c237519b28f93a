package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"pricewatch-api/internal/events"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/cache"
)

// Aggregating is the part of the Aggregator a monitor tick needs.
type Aggregating interface {
	Aggregate(ctx context.Context, productKey, searchTerm string, country models.Country) (*models.ComparisonResult, error)
}

type MonitorConfig struct {
	Interval         time.Duration
	DefaultThreshold float64
	SubscriptionTTL  time.Duration
	TickTimeout      time.Duration
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:         30 * time.Minute,
		DefaultThreshold: models.DefaultChangeThresholdPercent,
		SubscriptionTTL:  24 * time.Hour,
		TickTimeout:      2 * time.Minute,
	}
}

type subscriptionKey struct {
	owner   string
	product string
}

// productTask is the one scheduled poll shared by every owner watching a
// product.
type productTask struct {
	entryID    cron.EntryID
	searchTerm string
}

// Monitor owns monitor subscriptions and their scheduled polls.
type Monitor struct {
	aggregator Aggregating
	cache      *cache.PriceCache
	emitter    events.Emitter
	cron       *cron.Cron
	config     MonitorConfig
	now        func() time.Time
	logger     zerolog.Logger

	mu    sync.Mutex
	subs  map[subscriptionKey]*models.MonitorSubscription
	tasks map[string]*productTask

	// inFlight outlives the cron entry, so a product re-watched mid-tick
	// still cannot poll twice at once.
	inFlight map[string]struct{}
}

func NewMonitor(aggregator Aggregating, priceCache *cache.PriceCache, emitter events.Emitter, cfg MonitorConfig, logger zerolog.Logger) *Monitor {
	def := DefaultMonitorConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.DefaultThreshold <= 0 || cfg.DefaultThreshold > 100 {
		cfg.DefaultThreshold = def.DefaultThreshold
	}
	if cfg.SubscriptionTTL <= 0 {
		cfg.SubscriptionTTL = def.SubscriptionTTL
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = def.TickTimeout
	}
	if emitter == nil {
		emitter = events.LogEmitter{Logger: logger}
	}
	logger = logger.With().Str("component", "monitor").Logger()
	return &Monitor{
		aggregator: aggregator,
		cache:      priceCache,
		emitter:    emitter,
		cron:       cron.New(cron.WithLogger(cronLogger{logger: logger})),
		config:     cfg,
		now:        time.Now,
		logger:     logger,
		subs:       make(map[subscriptionKey]*models.MonitorSubscription),
		inFlight:   make(map[string]struct{}),
		tasks:      make(map[string]*productTask),
	}
}

// Run starts the scheduler. Polls registered before Run wait for it.
func (m *Monitor) Run() {
	m.cron.Start()
	m.logger.Info().Dur("interval", m.config.Interval).Msg("Price monitor started")
}

// Shutdown stops scheduling and waits for in-flight polls or ctx.
func (m *Monitor) Shutdown(ctx context.Context) error {
	done := m.cron.Stop()
	select {
	case <-done.Done():
		m.logger.Info().Msg("Price monitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartMonitoring subscribes ownerID to productKey. A second call for the
// same owner and product returns the existing subscription.
func (m *Monitor) StartMonitoring(productKey, searchTerm, ownerID string, threshold *float64) (models.MonitorSubscription, error) {
	if productKey == "" || searchTerm == "" || ownerID == "" {
		return models.MonitorSubscription{}, &AggregationError{Reason: "productKey, searchTerm and ownerId are required"}
	}
	if err := models.ValidateProductKey(productKey); err != nil {
		return models.MonitorSubscription{}, &AggregationError{Reason: err.Error()}
	}
	pct := m.config.DefaultThreshold
	if threshold != nil {
		if *threshold <= 0 || *threshold > 100 {
			return models.MonitorSubscription{}, fmt.Errorf("%w: got %v", ErrInvalidThreshold, *threshold)
		}
		pct = *threshold
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := subscriptionKey{owner: ownerID, product: productKey}
	if existing, ok := m.subs[key]; ok {
		if existing.ExpiresAt.IsZero() || m.now().Before(existing.ExpiresAt) {
			return *existing, nil
		}
		m.stopLocked(key, "expired")
	}

	if _, ok := m.tasks[productKey]; !ok {
		task := &productTask{searchTerm: searchTerm}
		id, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.config.Interval), func() {
			ctx, cancel := context.WithTimeout(context.Background(), m.config.TickTimeout)
			defer cancel()
			_ = m.Tick(ctx, productKey)
		})
		if err != nil {
			return models.MonitorSubscription{}, fmt.Errorf("schedule monitor for %s: %w", productKey, err)
		}
		task.entryID = id
		m.tasks[productKey] = task
	}

	now := m.now()
	sub := &models.MonitorSubscription{
		ID:                     uuid.NewString(),
		ProductKey:             productKey,
		SearchTerm:             searchTerm,
		OwnerID:                ownerID,
		ChangeThresholdPercent: pct,
		CreatedAt:              now,
		ExpiresAt:              now.Add(m.config.SubscriptionTTL),
		Active:                 true,
	}
	m.subs[key] = sub
	activeSubscriptions.Set(float64(len(m.subs)))

	m.logger.Info().
		Str("product_key", productKey).
		Str("owner_id", ownerID).
		Str("subscription_id", sub.ID).
		Float64("threshold", pct).
		Msg("Monitoring started")
	return *sub, nil
}

// StopMonitoring ends the owner's subscription. It reports whether one
// existed; stopping an unknown subscription is not an error.
func (m *Monitor) StopMonitoring(productKey, ownerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(subscriptionKey{owner: ownerID, product: productKey}, "stopped")
}

func (m *Monitor) stopLocked(key subscriptionKey, reason string) bool {
	sub, ok := m.subs[key]
	if !ok {
		return false
	}
	sub.Active = false
	delete(m.subs, key)
	activeSubscriptions.Set(float64(len(m.subs)))

	if !m.watchedLocked(key.product) {
		if task, ok := m.tasks[key.product]; ok {
			m.cron.Remove(task.entryID)
			delete(m.tasks, key.product)
		}
	}
	m.logger.Info().
		Str("product_key", key.product).
		Str("owner_id", key.owner).
		Str("reason", reason).
		Msg("Monitoring stopped")
	return true
}

func (m *Monitor) watchedLocked(productKey string) bool {
	for k := range m.subs {
		if k.product == productKey {
			return true
		}
	}
	return false
}

// Active lists active subscriptions, oldest first. An empty ownerID lists
// every owner's.
func (m *Monitor) Active(ownerID string) []models.MonitorSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.MonitorSubscription, 0, len(m.subs))
	for k, sub := range m.subs {
		if ownerID == "" || k.owner == ownerID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Scheduled reports the number of products with a scheduled poll.
func (m *Monitor) Scheduled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Tick polls one product: it expires stale subscriptions, reads the last
// known prices and aggregates. Each subscription is judged against its own
// threshold. A change that clears any of them goes to the product room once,
// listing the owners it cleared, and to each of those owners' topics. A tick
// that finds the previous one still running returns ErrTickSkipped.
func (m *Monitor) Tick(ctx context.Context, productKey string) error {
	m.mu.Lock()
	task, ok := m.tasks[productKey]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if _, busy := m.inFlight[productKey]; busy {
		m.mu.Unlock()
		monitorTicks.WithLabelValues("skipped").Inc()
		m.logger.Warn().Str("product_key", productKey).Msg("Previous monitor tick still running, skipping")
		return ErrTickSkipped
	}
	m.inFlight[productKey] = struct{}{}
	searchTerm := task.searchTerm
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, productKey)
		m.mu.Unlock()
	}()

	subs := m.sweep(productKey)
	if len(subs) == 0 {
		return nil
	}

	previous, err := m.cache.GetAllForProduct(ctx, productKey)
	if err != nil {
		m.logger.Warn().Err(err).Str("product_key", productKey).Msg("Failed to read cached prices")
	}

	result, err := m.aggregator.Aggregate(ctx, productKey, searchTerm, "")
	if err != nil {
		tickErr := &MonitorTickError{ProductKey: productKey, Err: err}
		monitorTicks.WithLabelValues("failed").Inc()
		m.logger.Error().Err(tickErr).Str("product_key", productKey).Msg("Monitor tick failed")
		return tickErr
	}
	monitorTicks.WithLabelValues("ok").Inc()

	at := m.now()
	var room []*models.PriceChangeEvent
	byRetailer := make(map[string]*models.PriceChangeEvent)
	for _, sub := range subs {
		for _, change := range DetectChanges(productKey, previous, result.Prices, sub.ChangeThresholdPercent, at) {
			ev, seen := byRetailer[change.Retailer]
			if !seen {
				shared := change
				ev = &shared
				byRetailer[change.Retailer] = ev
				room = append(room, ev)
			}
			ev.OwnerIDs = append(ev.OwnerIDs, sub.OwnerID)

			change.OwnerIDs = []string{sub.OwnerID}
			change.SubscriptionID = sub.ID
			m.emitter.Publish(events.OwnerTopic(sub.OwnerID), change)
		}
	}

	for _, change := range room {
		priceChanges.WithLabelValues(string(change.Direction)).Inc()
		m.emitter.Publish(events.ProductTopic(productKey), *change)
		m.logger.Info().
			Str("product_key", productKey).
			Str("retailer", change.Retailer).
			Str("old_price", change.OldPrice.String()).
			Str("new_price", change.NewPrice.String()).
			Float64("change_percent", change.ChangePercent).
			Strs("owners", change.OwnerIDs).
			Msg("Significant price change")
	}
	return nil
}

// sweep drops expired subscriptions for the product and returns copies of
// the remaining ones, lowest threshold first.
func (m *Monitor) sweep(productKey string) []models.MonitorSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, sub := range m.subs {
		if k.product == productKey && !sub.ExpiresAt.IsZero() && !now.Before(sub.ExpiresAt) {
			m.stopLocked(k, "expired")
		}
	}

	var subs []models.MonitorSubscription
	for k, sub := range m.subs {
		if k.product == productKey {
			subs = append(subs, *sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].ChangeThresholdPercent != subs[j].ChangeThresholdPercent {
			return subs[i].ChangeThresholdPercent < subs[j].ChangeThresholdPercent
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs
}

// DetectChanges compares retailers present in both snapshots. A retailer
// seen for the first time never produces an event.
func DetectChanges(productKey string, previous, current []models.ProductPrice, thresholdPercent float64, at time.Time) []models.PriceChangeEvent {
	old := make(map[string]decimal.Decimal, len(previous))
	for _, p := range previous {
		old[p.Retailer] = p.Price
	}

	hundred := decimal.NewFromInt(100)
	threshold := decimal.NewFromFloat(thresholdPercent)

	var changes []models.PriceChangeEvent
	for _, p := range current {
		before, ok := old[p.Retailer]
		if !ok || !before.IsPositive() {
			continue
		}
		pct := p.Price.Sub(before).Div(before).Mul(hundred)
		if pct.Abs().LessThan(threshold) {
			continue
		}
		direction := models.DirectionUp
		if pct.IsNegative() {
			direction = models.DirectionDown
		}
		changes = append(changes, models.PriceChangeEvent{
			ProductKey:    productKey,
			Retailer:      p.Retailer,
			OldPrice:      before,
			NewPrice:      p.Price,
			ChangePercent: pct.Round(2).InexactFloat64(),
			Direction:     direction,
			Timestamp:     at,
		})
	}
	return changes
}

// cronLogger routes the scheduler's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msgf("cron: %s", msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msgf("cron: %s", msg)
}

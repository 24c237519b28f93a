// Package scrapers resolves a search term to a priced offer at one retailer,
// either by rendering its pages or by calling its vendor API.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/browser"
	"pricewatch-api/pkg/utils"
)

// Generic product-link heuristics for search result pages, tried in order.
var productLinkSelectors = []string{
	`a[href*="/dp/"]`,
	`a[href*="/ip/"]`,
	`a[href*="/item/"]`,
	`a[href*="/produto/"]`,
	`a[href*="/product"]`,
	`.product-title a`,
	`.product-name a`,
	`[data-testid*="product"] a`,
}

// Listing is a search hit: the product page and, for API vendors, the item id.
type Listing struct {
	URL    string
	ItemID string
}

type Config struct {
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		NavigationTimeout: 30 * time.Second,
		SelectorTimeout:   10 * time.Second,
	}
}

type SourceFetcher struct {
	pool    *browser.Pool
	vendors map[models.APIVendor]VendorClient
	pacer   *Pacer
	cfg     Config
	logger  zerolog.Logger
}

func NewSourceFetcher(pool *browser.Pool, vendors map[models.APIVendor]VendorClient, pacer *Pacer, cfg Config, logger zerolog.Logger) *SourceFetcher {
	def := DefaultConfig()
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = def.NavigationTimeout
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = def.SelectorTimeout
	}
	if pacer == nil {
		pacer = NewPacer()
	}
	return &SourceFetcher{
		pool:    pool,
		vendors: vendors,
		pacer:   pacer,
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch runs search then extract for one retailer.
func (f *SourceFetcher) Fetch(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (models.ProductPrice, error) {
	start := time.Now()
	listing, err := f.Search(ctx, cfg, searchTerm)
	if err != nil {
		f.observe(cfg.Name, start, err)
		return models.ProductPrice{}, err
	}
	price, err := f.ExtractPrice(ctx, cfg, listing)
	f.observe(cfg.Name, start, err)
	return price, err
}

// FetchURL extracts the price from a known product page or item URL.
func (f *SourceFetcher) FetchURL(ctx context.Context, cfg models.RetailerConfig, productURL string) (models.ProductPrice, error) {
	start := time.Now()
	listing := Listing{URL: productURL}
	if cfg.AccessMethod == models.AccessAPI {
		listing.ItemID = itemIDFromURL(productURL)
	}
	price, err := f.ExtractPrice(ctx, cfg, listing)
	f.observe(cfg.Name, start, err)
	return price, err
}

func (f *SourceFetcher) observe(retailer string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "failed"
	}
	fetchDuration.WithLabelValues(retailer, outcome).Observe(time.Since(start).Seconds())
}

// Search locates a candidate product for searchTerm.
func (f *SourceFetcher) Search(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (Listing, error) {
	if err := f.pacer.Wait(ctx, cfg); err != nil {
		return Listing{}, fail(cfg.Name, StagePacing, err)
	}

	switch cfg.AccessMethod {
	case models.AccessAPI:
		client, err := f.vendor(cfg)
		if err != nil {
			return Listing{}, err
		}
		listing, err := client.Search(ctx, cfg, searchTerm)
		if err != nil {
			return Listing{}, fail(cfg.Name, StageSearch, err)
		}
		return listing, nil
	default:
		return f.scrapeSearch(ctx, cfg, searchTerm)
	}
}

// ExtractPrice turns a listing into a normalized ProductPrice.
func (f *SourceFetcher) ExtractPrice(ctx context.Context, cfg models.RetailerConfig, listing Listing) (models.ProductPrice, error) {
	if err := f.pacer.Wait(ctx, cfg); err != nil {
		return models.ProductPrice{}, fail(cfg.Name, StagePacing, err)
	}

	var (
		price models.ProductPrice
		err   error
	)
	switch cfg.AccessMethod {
	case models.AccessAPI:
		var client VendorClient
		if client, err = f.vendor(cfg); err != nil {
			return models.ProductPrice{}, err
		}
		price, err = client.Item(ctx, cfg, listing)
		if err != nil {
			return models.ProductPrice{}, fail(cfg.Name, StageAPI, err)
		}
	default:
		price, err = f.scrapePrice(ctx, cfg, listing.URL)
		if err != nil {
			return models.ProductPrice{}, err
		}
	}

	if err := price.Validate(); err != nil {
		return models.ProductPrice{}, fail(cfg.Name, StageParse, err)
	}
	return price, nil
}

func (f *SourceFetcher) vendor(cfg models.RetailerConfig) (VendorClient, error) {
	if cfg.API == nil {
		return nil, fail(cfg.Name, StageAPI, models.ErrInvalidRetailerConfig)
	}
	client, ok := f.vendors[cfg.API.Vendor]
	if !ok {
		return nil, fail(cfg.Name, StageAPI, fmt.Errorf("no client for vendor %q", cfg.API.Vendor))
	}
	return client, nil
}

func (f *SourceFetcher) scrapeSearch(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (Listing, error) {
	searchURL := BuildSearchURL(cfg, searchTerm)

	var href string
	err := f.pool.Do(ctx, func(s browser.Session) error {
		navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
		defer cancel()

		if err := s.Navigate(navCtx, searchURL, cfg.Headers); err != nil {
			return fail(cfg.Name, StageNavigate, err)
		}
		h, err := s.FirstHref(navCtx, productLinkSelectors)
		if errors.Is(err, browser.ErrNoMatch) {
			return fail(cfg.Name, StageSearch, ErrNotFound)
		}
		if err != nil {
			return fail(cfg.Name, StageSearch, err)
		}
		href = h
		return nil
	})
	if err != nil {
		return Listing{}, fail(cfg.Name, StageSession, err)
	}

	f.logger.Debug().Str("retailer", cfg.Name).Str("url", href).Msg("Found product link")
	return Listing{URL: href}, nil
}

type scrapedText struct {
	price        string
	original     string
	availability string
}

func (f *SourceFetcher) scrapePrice(ctx context.Context, cfg models.RetailerConfig, productURL string) (models.ProductPrice, error) {
	if productURL == "" {
		return models.ProductPrice{}, fail(cfg.Name, StageNavigate, errors.New("empty product url"))
	}
	rules := cfg.Scrape.Rules

	var text scrapedText
	err := f.pool.Do(ctx, func(s browser.Session) error {
		navCtx, cancel := context.WithTimeout(ctx, f.cfg.NavigationTimeout)
		defer cancel()
		if err := s.Navigate(navCtx, productURL, cfg.Headers); err != nil {
			return fail(cfg.Name, StageNavigate, err)
		}

		waitCtx, cancelWait := context.WithTimeout(ctx, f.cfg.SelectorTimeout)
		defer cancelWait()
		if err := s.WaitVisible(waitCtx, rules.Price); err != nil {
			return fail(cfg.Name, StageWait, err)
		}

		var err error
		if text.price, err = s.Text(waitCtx, rules.Price); err != nil {
			return fail(cfg.Name, StageWait, err)
		}
		if rules.OriginalPrice != "" {
			text.original, _ = s.Text(waitCtx, rules.OriginalPrice)
		}
		if rules.Availability != "" {
			text.availability, _ = s.Text(waitCtx, rules.Availability)
		}
		return nil
	})
	if err != nil {
		return models.ProductPrice{}, fail(cfg.Name, StageSession, err)
	}

	amount, err := utils.ParsePrice(text.price, cfg.Country)
	if err != nil {
		return models.ProductPrice{}, fail(cfg.Name, StageParse, err)
	}

	price := models.ProductPrice{
		Retailer:     cfg.Name,
		Price:        amount,
		Currency:     cfg.Country.Currency(),
		Availability: utils.ParseAvailability(text.availability),
		SourceURL:    productURL,
		LastUpdated:  time.Now(),
	}
	if text.original != "" {
		if original, err := utils.ParsePrice(text.original, cfg.Country); err == nil && original.GreaterThan(amount) {
			price.OriginalPrice = &original
			if pct, ok := utils.DiscountPercent(amount, original); ok {
				price.DiscountPercent = &pct
			}
		}
	}
	return price, nil
}

// BuildSearchURL fills the retailer's search path template with searchTerm,
// escaped for the part of the URL the placeholder sits in.
func BuildSearchURL(cfg models.RetailerConfig, searchTerm string) string {
	path := models.DefaultSearchPath
	if cfg.Scrape != nil && cfg.Scrape.SearchPath != "" {
		path = cfg.Scrape.SearchPath
	}

	term := strings.TrimSpace(searchTerm)
	escaped := url.PathEscape(term)
	if q := strings.IndexByte(path, '?'); q >= 0 && q < strings.Index(path, "{query}") {
		escaped = url.QueryEscape(term)
	}
	return cfg.BaseURL + strings.ReplaceAll(path, "{query}", escaped)
}

// itemIDFromURL takes the last purely numeric path segment, which is how
// Walmart (/ip/name/123) and eBay (/itm/123) expose item ids.
func itemIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg != "" && strings.Trim(seg, "0123456789") == "" {
			return seg
		}
	}
	if id := u.Query().Get("item"); id != "" {
		return id
	}
	return ""
}

package models

import (
	"errors"
	"fmt"
	"strings"
)

type Country string

const (
	CountryUS Country = "US"
	CountryBR Country = "BR"
)

// ParseCountry normalizes a country code. Empty input yields "".
func ParseCountry(s string) (Country, error) {
	switch c := Country(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return "", nil
	case CountryUS, CountryBR:
		return c, nil
	default:
		return "", fmt.Errorf("unsupported country %q", s)
	}
}

// Currency returns the currency prices are quoted in for the country.
func (c Country) Currency() Currency {
	if c == CountryBR {
		return CurrencyBRL
	}
	return CurrencyUSD
}

type AccessMethod string

const (
	AccessAPI        AccessMethod = "api"
	AccessPageScrape AccessMethod = "page-scrape"
)

type APIVendor string

const (
	VendorWalmart APIVendor = "walmart"
	VendorEbay    APIVendor = "ebay"
)

var ErrInvalidRetailerConfig = errors.New("invalid retailer config")

// RetailerConfig describes one retailer. Exactly one of API or Scrape is set,
// matching AccessMethod; use NewAPIRetailer / NewScrapeRetailer to build one.
type RetailerConfig struct {
	Name               string            `json:"name"`
	Country            Country           `json:"country"`
	AccessMethod       AccessMethod      `json:"access_method"`
	BaseURL            string            `json:"base_url"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute"`
	Headers            map[string]string `json:"-"`

	API    *APIAccess    `json:"-"`
	Scrape *ScrapeAccess `json:"-"`
}

type APIAccess struct {
	Vendor APIVendor
	APIKey string
	// SearchURL overrides BaseURL for vendors whose search lives on a separate host.
	SearchURL string
}

type ScrapeAccess struct {
	// SearchPath is appended to BaseURL; {query} is replaced by the escaped search term.
	SearchPath string
	Rules      ExtractionRules
}

type ExtractionRules struct {
	Price         string
	OriginalPrice string
	Title         string
	Image         string
	Availability  string
	Rating        string
	Reviews       string
}

const DefaultSearchPath = "/search?q={query}"

func NewAPIRetailer(name string, country Country, baseURL string, ratePerMinute int, access APIAccess) RetailerConfig {
	return RetailerConfig{
		Name:               name,
		Country:            country,
		AccessMethod:       AccessAPI,
		BaseURL:            strings.TrimRight(baseURL, "/"),
		RateLimitPerMinute: ratePerMinute,
		API:                &access,
	}
}

func NewScrapeRetailer(name string, country Country, baseURL string, ratePerMinute int, access ScrapeAccess, headers map[string]string) RetailerConfig {
	if access.SearchPath == "" {
		access.SearchPath = DefaultSearchPath
	}
	return RetailerConfig{
		Name:               name,
		Country:            country,
		AccessMethod:       AccessPageScrape,
		BaseURL:            strings.TrimRight(baseURL, "/"),
		RateLimitPerMinute: ratePerMinute,
		Headers:            headers,
		Scrape:             &access,
	}
}

func (c RetailerConfig) Validate() error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidRetailerConfig, c.Name, reason)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRetailerConfig)
	}
	if strings.ContainsAny(c.Name, `:*?[]\`) {
		return invalid("name cannot contain ':' or glob characters")
	}
	if c.BaseURL == "" {
		return invalid("base url is required")
	}
	if c.RateLimitPerMinute <= 0 {
		return invalid("rate limit must be positive")
	}
	if _, err := ParseCountry(string(c.Country)); err != nil || c.Country == "" {
		return invalid("unsupported country")
	}

	switch c.AccessMethod {
	case AccessAPI:
		if c.API == nil || c.Scrape != nil {
			return invalid("api retailer must carry api access only")
		}
		if c.API.Vendor != VendorWalmart && c.API.Vendor != VendorEbay {
			return invalid(fmt.Sprintf("unknown api vendor %q", c.API.Vendor))
		}
	case AccessPageScrape:
		if c.Scrape == nil || c.API != nil {
			return invalid("scrape retailer must carry scrape access only")
		}
		if c.Scrape.Rules.Price == "" {
			return invalid("price selector is required")
		}
	default:
		return invalid(fmt.Sprintf("unknown access method %q", c.AccessMethod))
	}
	return nil
}

// UsesRenderer reports whether fetching this retailer needs a pooled session.
func (c RetailerConfig) UsesRenderer() bool {
	return c.AccessMethod == AccessPageScrape
}

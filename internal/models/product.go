package models

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyBRL Currency = "BRL"
)

type Availability string

const (
	InStock      Availability = "in_stock"
	OutOfStock   Availability = "out_of_stock"
	LimitedStock Availability = "limited_stock"
)

var (
	ErrNegativePrice      = errors.New("price cannot be negative")
	ErrOriginalBelowPrice = errors.New("original price cannot be lower than price")
	ErrInvalidProductKey  = errors.New("invalid product key")

	productKeyChars = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidateProductKey accepts keys made of letters, digits, '.', '_' and '-'.
// Derived keys are base64url and always pass; caller-supplied keys must not
// carry the cache keyspace separator or glob characters.
func ValidateProductKey(key string) error {
	if !productKeyChars.MatchString(key) {
		return fmt.Errorf("%w %q: use letters, digits, '.', '_' or '-'", ErrInvalidProductKey, key)
	}
	return nil
}

// ProductPrice is one retailer's offer for one product. Values are never
// mutated after creation; a changed price is a new ProductPrice.
type ProductPrice struct {
	Retailer        string           `json:"retailer"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	Currency        Currency         `json:"currency"`
	Availability    Availability     `json:"availability"`
	ShippingCost    *decimal.Decimal `json:"shipping_cost,omitempty"`
	ShippingTime    string           `json:"shipping_time,omitempty"`
	SourceURL       string           `json:"url"`
	LastUpdated     time.Time        `json:"last_updated"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	CouponCode      string           `json:"coupon_code,omitempty"`

	// Filled in when the price is placed into a ComparisonResult.
	IsLowest           bool             `json:"is_lowest"`
	PriceRank          int              `json:"price_rank,omitempty"`
	SavingsFromHighest *decimal.Decimal `json:"savings_from_highest,omitempty"`
	SearchTerm         string           `json:"search_term,omitempty"`
}

func (p ProductPrice) Validate() error {
	if p.Price.IsNegative() {
		return fmt.Errorf("%s: %w", p.Retailer, ErrNegativePrice)
	}
	if p.OriginalPrice != nil && p.OriginalPrice.LessThan(p.Price) {
		return fmt.Errorf("%s: %w", p.Retailer, ErrOriginalBelowPrice)
	}
	return nil
}

// ComparisonResult is the aggregated view of one product query. Build it
// with NewComparisonResult so ordering and stats always agree.
type ComparisonResult struct {
	ProductKey    string           `json:"product_key"`
	SearchTerm    string           `json:"search_term"`
	Country       Country          `json:"country,omitempty"`
	Prices        []ProductPrice   `json:"prices"`
	LowestPrice   *decimal.Decimal `json:"lowest_price"`
	HighestPrice  *decimal.Decimal `json:"highest_price"`
	AveragePrice  *decimal.Decimal `json:"average_price"`
	RetailerCount int              `json:"retailer_count"`
	Attempted     int              `json:"retailers_attempted"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Duration      string           `json:"duration,omitempty"`
}

// NewComparisonResult sorts prices ascending, enriches each entry with its
// rank and derives the summary stats. An empty input leaves every stat nil.
func NewComparisonResult(productKey, searchTerm string, prices []ProductPrice) *ComparisonResult {
	sorted := make([]ProductPrice, len(prices))
	copy(sorted, prices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Price.LessThan(sorted[j].Price)
	})

	result := &ComparisonResult{
		ProductKey:    productKey,
		SearchTerm:    searchTerm,
		Prices:        sorted,
		RetailerCount: len(sorted),
		GeneratedAt:   time.Now(),
	}
	if len(sorted) == 0 {
		return result
	}

	lowest := sorted[0].Price
	highest := sorted[len(sorted)-1].Price
	sum := decimal.Zero
	for i := range sorted {
		sum = sum.Add(sorted[i].Price)
		savings := highest.Sub(sorted[i].Price)
		sorted[i].IsLowest = i == 0
		sorted[i].PriceRank = i + 1
		sorted[i].SavingsFromHighest = &savings
		sorted[i].SearchTerm = searchTerm
	}
	average := sum.Div(decimal.NewFromInt(int64(len(sorted))))

	result.LowestPrice = &lowest
	result.HighestPrice = &highest
	result.AveragePrice = &average
	return result
}

type CompareResponse struct {
	*ComparisonResult
	FromCache bool   `json:"from_cache"`
	Warning   string `json:"warning,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

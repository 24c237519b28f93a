package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"pricewatch-api/internal/models"
)

var (
	ErrEmptyPrice   = errors.New("empty price text")
	ErrInvalidPrice = errors.New("invalid price text")

	numericRun = regexp.MustCompile(`\d[\d.,]*`)
	whitespace = regexp.MustCompile(`\s+`)
)

// ParsePrice converts scraped price text ("$1,299.99", "R$ 1.299,90", "12,50")
// into a decimal. Only the first number in the text is read, so ranges and
// was/now pairs yield their leading price. The country decides which
// separator groups thousands when the text alone is ambiguous.
func ParsePrice(priceStr string, country models.Country) (decimal.Decimal, error) {
	clean := strings.TrimRight(numericRun.FindString(priceStr), ".,")
	if clean == "" {
		return decimal.Zero, ErrEmptyPrice
	}

	clean = normalizeSeparators(clean, thousandsSeparator(country))

	price, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidPrice, priceStr, err)
	}
	return price, nil
}

func thousandsSeparator(country models.Country) byte {
	if country == models.CountryBR {
		return '.'
	}
	return ','
}

func normalizeSeparators(s string, thousands byte) string {
	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Whichever separator comes last marks the decimals.
		if lastDot > lastComma {
			return strings.ReplaceAll(s, ",", "")
		}
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case lastDot < 0 && lastComma < 0:
		return s
	}

	sep := byte('.')
	idx := lastDot
	if lastComma >= 0 {
		sep, idx = ',', lastComma
	}

	count := strings.Count(s, string(sep))
	digitsAfter := len(s) - idx - 1
	if count > 1 || (digitsAfter == 3 && sep == thousands) {
		return strings.ReplaceAll(s, string(sep), "")
	}
	return strings.Replace(s, string(sep), ".", 1)
}

var (
	outOfStockKeywords = []string{
		"out of stock", "sold out", "unavailable", "currently unavailable",
		"indisponível", "indisponivel", "esgotado", "sem estoque", "fora de estoque",
	}
	limitedStockKeywords = []string{
		"limited", "few left", "left in stock", "low stock",
		"últimas unidades", "ultimas unidades", "poucas unidades", "restam",
	}
)

// ParseAvailability maps availability text in English or Portuguese onto the
// three stock states. Anything unrecognized counts as in stock.
func ParseAvailability(text string) models.Availability {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return models.InStock
	}
	for _, kw := range outOfStockKeywords {
		if strings.Contains(lower, kw) {
			return models.OutOfStock
		}
	}
	for _, kw := range limitedStockKeywords {
		if strings.Contains(lower, kw) {
			return models.LimitedStock
		}
	}
	return models.InStock
}

// NormalizeSearchTerm lowercases a search term and joins its words with "-",
// so case and whitespace differences compare equal.
func NormalizeSearchTerm(searchTerm string) string {
	return whitespace.ReplaceAllString(strings.ToLower(strings.TrimSpace(searchTerm)), "-")
}

// ProductKey derives a stable identifier from a search term.
func ProductKey(searchTerm string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(NormalizeSearchTerm(searchTerm)))
}

// FormatPrice renders a price with its currency symbol.
func FormatPrice(price decimal.Decimal, currency models.Currency) string {
	switch currency {
	case models.CurrencyBRL:
		whole := price.StringFixed(2)
		return "R$ " + strings.Replace(whole, ".", ",", 1)
	default:
		return "$" + price.StringFixed(2)
	}
}

// DiscountPercent returns how far price sits below original, in percent.
func DiscountPercent(price, original decimal.Decimal) (float64, bool) {
	if !original.IsPositive() || !original.GreaterThan(price) {
		return 0, false
	}
	pct, _ := original.Sub(price).Div(original).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return pct, true
}

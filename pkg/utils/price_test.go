package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pricewatch-api/internal/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		country models.Country
		want    string
	}{
		{"dollar with cents", "$12.50", models.CountryUS, "12.50"},
		{"us thousands", "$1,299.99", models.CountryUS, "1299.99"},
		{"us thousands only", "1,299", models.CountryUS, "1299"},
		{"amazon whole part", "1,299.", models.CountryUS, "1299"},
		{"brazil full", "R$ 1.299,90", models.CountryBR, "1299.90"},
		{"brazil cents", "R$ 12,50", models.CountryBR, "12.50"},
		{"brazil thousands only", "1.299", models.CountryBR, "1299"},
		{"repeated thousands", "1.234.567", models.CountryUS, "1234567"},
		{"surrounding text", "Now only $ 10.00 each", models.CountryUS, "10.00"},
		{"integer", "42", models.CountryUS, "42"},
		{"price range", "$12.99 - $15.99", models.CountryUS, "12.99"},
		{"was and now", "Was $20.00 Now $15.00", models.CountryUS, "20.00"},
		{"brazil pair", "R$ 49,90 R$ 59,90", models.CountryBR, "49.90"},
		{"brazil range with thousands", "R$ 1.299,90 a R$ 1.499,90", models.CountryBR, "1299.90"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrice(tt.in, tt.country)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParsePriceFailures(t *testing.T) {
	_, err := ParsePrice("", models.CountryUS)
	assert.ErrorIs(t, err, ErrEmptyPrice)

	_, err = ParsePrice("Call for price", models.CountryUS)
	assert.ErrorIs(t, err, ErrEmptyPrice)

	_, err = ParsePrice("...", models.CountryUS)
	assert.ErrorIs(t, err, ErrEmptyPrice)

	_, err = ParsePrice("$ -", models.CountryUS)
	assert.ErrorIs(t, err, ErrEmptyPrice)
}

func TestParseAvailability(t *testing.T) {
	tests := map[string]models.Availability{
		"":                               models.InStock,
		"In Stock":                       models.InStock,
		"Currently unavailable.":         models.OutOfStock,
		"OUT OF STOCK":                   models.OutOfStock,
		"Produto INDISPONÍVEL":           models.OutOfStock,
		"Esgotado":                       models.OutOfStock,
		"Limited quantity":               models.LimitedStock,
		"Últimas unidades!":              models.LimitedStock,
		"Only 2 left in stock - order soon": models.LimitedStock,
		"Adicionar ao carrinho":          models.InStock,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseAvailability(in), in)
	}
}

func TestProductKey(t *testing.T) {
	a := ProductKey("iPhone 15  Pro")
	b := ProductKey(" iphone 15 pro ")
	assert.Equal(t, a, b)
	assert.NotEqual(t, ProductKey("iphone 15 pro max"), ProductKey("iphone 15 pro mini"))
	assert.NotContains(t, a, ":")
	assert.NotContains(t, a, "*")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "$10.50", FormatPrice(decimal.RequireFromString("10.5"), models.CurrencyUSD))
	assert.Equal(t, "R$ 1299,90", FormatPrice(decimal.RequireFromString("1299.9"), models.CurrencyBRL))
}

func TestDiscountPercent(t *testing.T) {
	pct, ok := DiscountPercent(decimal.NewFromInt(75), decimal.NewFromInt(100))
	require.True(t, ok)
	assert.InDelta(t, 25.0, pct, 0.001)

	_, ok = DiscountPercent(decimal.NewFromInt(100), decimal.NewFromInt(100))
	assert.False(t, ok)
}

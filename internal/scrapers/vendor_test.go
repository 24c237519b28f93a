package scrapers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pricewatch-api/internal/models"
)

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestWalmartClientFetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "key" || r.URL.Query().Get("query") != "widget" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		jsonHandler(`{"items":[{"itemId":123,"productUrl":"https://www.walmart.com/ip/widget/123"}]}`)(w, r)
	})
	mux.HandleFunc("/items/123", jsonHandler(`{
		"itemId": 123,
		"name": "Widget",
		"salePrice": 10.00,
		"msrp": 14.99,
		"availableOnline": true,
		"productUrl": "https://www.walmart.com/ip/widget/123"
	}`))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := models.NewAPIRetailer("Walmart", models.CountryUS, srv.URL, 6000,
		models.APIAccess{Vendor: models.VendorWalmart, APIKey: "key"})
	fetcher := NewSourceFetcher(nil, DefaultVendors(5*time.Second), nil, Config{}, zerolog.Nop())

	price, err := fetcher.Fetch(context.Background(), cfg, "widget")
	require.NoError(t, err)
	assert.Equal(t, "Walmart", price.Retailer)
	assert.True(t, price.Price.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, price.OriginalPrice)
	assert.True(t, price.OriginalPrice.Equal(decimal.RequireFromString("14.99")))
	assert.Equal(t, models.InStock, price.Availability)
	assert.Equal(t, models.CurrencyUSD, price.Currency)

	byURL, err := fetcher.FetchURL(context.Background(), cfg, "https://www.walmart.com/ip/widget/123")
	require.NoError(t, err)
	assert.True(t, byURL.Price.Equal(price.Price))
}

func TestWalmartClientNoResults(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"items":[]}`))
	defer srv.Close()

	cfg := models.NewAPIRetailer("Walmart", models.CountryUS, srv.URL, 6000,
		models.APIAccess{Vendor: models.VendorWalmart, APIKey: "key"})
	fetcher := NewSourceFetcher(nil, DefaultVendors(time.Second), nil, Config{}, zerolog.Nop())

	_, err := fetcher.Fetch(context.Background(), cfg, "widget")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalmartClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := models.NewAPIRetailer("Walmart", models.CountryUS, srv.URL, 6000,
		models.APIAccess{Vendor: models.VendorWalmart, APIKey: "key"})
	fetcher := NewSourceFetcher(nil, DefaultVendors(time.Second), nil, Config{}, zerolog.Nop())

	_, err := fetcher.Fetch(context.Background(), cfg, "widget")
	assert.ErrorIs(t, err, ErrExtraction)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestEbayClientFetch(t *testing.T) {
	finding := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("OPERATION-NAME") != "findItemsByKeywords" {
			http.Error(w, "bad op", http.StatusBadRequest)
			return
		}
		jsonHandler(`{"findItemsByKeywordsResponse":[{"searchResult":[{"@count":"1","item":[
			{"itemId":["987"],"viewItemURL":["https://www.ebay.com/itm/987"]}
		]}]}]}`)(w, r)
	}))
	defer finding.Close()

	shopping := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ItemID") != "987" || r.URL.Query().Get("callname") != "GetSingleItem" {
			http.Error(w, "bad item", http.StatusBadRequest)
			return
		}
		jsonHandler(`{"Item":{"ItemID":"987","CurrentPrice":{"Value":12.5,"CurrencyID":"USD"},
			"Quantity":5,"QuantitySold":3,"ViewItemURL":"https://www.ebay.com/itm/987"}}`)(w, r)
	}))
	defer shopping.Close()

	cfg := models.NewAPIRetailer("eBay", models.CountryUS, shopping.URL, 6000, models.APIAccess{
		Vendor:    models.VendorEbay,
		APIKey:    "app",
		SearchURL: finding.URL,
	})
	fetcher := NewSourceFetcher(nil, DefaultVendors(5*time.Second), nil, Config{}, zerolog.Nop())

	price, err := fetcher.Fetch(context.Background(), cfg, "widget")
	require.NoError(t, err)
	assert.True(t, price.Price.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, models.LimitedStock, price.Availability)
	assert.Equal(t, "https://www.ebay.com/itm/987", price.SourceURL)
}

func TestEbayClientEmptySearch(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"findItemsByKeywordsResponse":[{"searchResult":[{"@count":"0"}]}]}`))
	defer srv.Close()

	cfg := models.NewAPIRetailer("eBay", models.CountryUS, srv.URL, 6000, models.APIAccess{Vendor: models.VendorEbay})
	fetcher := NewSourceFetcher(nil, DefaultVendors(time.Second), nil, Config{}, zerolog.Nop())

	_, err := fetcher.Fetch(context.Background(), cfg, "widget")
	assert.ErrorIs(t, err, ErrNotFound)
}

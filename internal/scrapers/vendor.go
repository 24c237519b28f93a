package scrapers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"pricewatch-api/internal/models"
)

// VendorClient is the API path of a retailer that exposes one.
type VendorClient interface {
	Search(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (Listing, error)
	Item(ctx context.Context, cfg models.RetailerConfig, listing Listing) (models.ProductPrice, error)
}

func newRestyClient(timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "pricewatch-api/1.0")
	client.SetTimeout(timeout)
	return client
}

// DefaultVendors returns clients for every supported vendor API.
func DefaultVendors(timeout time.Duration) map[models.APIVendor]VendorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return map[models.APIVendor]VendorClient{
		models.VendorWalmart: &WalmartClient{http: newRestyClient(timeout)},
		models.VendorEbay:    &EbayClient{http: newRestyClient(timeout)},
	}
}

func statusError(resp *resty.Response) error {
	return fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), resp.Request.URL)
}

type WalmartClient struct {
	http *resty.Client
}

type walmartItem struct {
	ItemID          int64            `json:"itemId"`
	Name            string           `json:"name"`
	SalePrice       *decimal.Decimal `json:"salePrice"`
	MSRP            *decimal.Decimal `json:"msrp"`
	AvailableOnline bool             `json:"availableOnline"`
	ProductURL      string           `json:"productUrl"`
}

type walmartSearchResponse struct {
	Items []walmartItem `json:"items"`
}

func (c *WalmartClient) Search(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (Listing, error) {
	var out walmartSearchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey": cfg.API.APIKey,
			"query":  searchTerm,
			"format": "json",
		}).
		SetResult(&out).
		Get(cfg.BaseURL + "/search")
	if err != nil {
		return Listing{}, err
	}
	if resp.IsError() {
		return Listing{}, statusError(resp)
	}
	if len(out.Items) == 0 {
		return Listing{}, ErrNotFound
	}

	first := out.Items[0]
	return Listing{
		URL:    first.ProductURL,
		ItemID: strconv.FormatInt(first.ItemID, 10),
	}, nil
}

func (c *WalmartClient) Item(ctx context.Context, cfg models.RetailerConfig, listing Listing) (models.ProductPrice, error) {
	if listing.ItemID == "" {
		return models.ProductPrice{}, errors.New("walmart item id is required")
	}

	var item walmartItem
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("itemId", listing.ItemID).
		SetQueryParams(map[string]string{
			"apikey": cfg.API.APIKey,
			"format": "json",
		}).
		SetResult(&item).
		Get(cfg.BaseURL + "/items/{itemId}")
	if err != nil {
		return models.ProductPrice{}, err
	}
	if resp.StatusCode() == 404 {
		return models.ProductPrice{}, ErrNotFound
	}
	if resp.IsError() {
		return models.ProductPrice{}, statusError(resp)
	}
	if item.SalePrice == nil {
		return models.ProductPrice{}, errors.New("walmart item has no sale price")
	}

	availability := models.OutOfStock
	if item.AvailableOnline {
		availability = models.InStock
	}
	sourceURL := item.ProductURL
	if sourceURL == "" {
		sourceURL = listing.URL
	}

	price := models.ProductPrice{
		Retailer:     cfg.Name,
		Price:        *item.SalePrice,
		Currency:     models.CurrencyUSD,
		Availability: availability,
		SourceURL:    sourceURL,
		LastUpdated:  time.Now(),
	}
	if item.MSRP != nil && item.MSRP.GreaterThan(*item.SalePrice) {
		price.OriginalPrice = item.MSRP
	}
	return price, nil
}

type EbayClient struct {
	http *resty.Client
}

type ebayFindingResponse struct {
	FindItemsByKeywordsResponse []struct {
		SearchResult []struct {
			Item []struct {
				ItemID      []string `json:"itemId"`
				ViewItemURL []string `json:"viewItemURL"`
			} `json:"item"`
		} `json:"searchResult"`
	} `json:"findItemsByKeywordsResponse"`
}

type ebaySingleItemResponse struct {
	Item *struct {
		ItemID       string `json:"ItemID"`
		CurrentPrice struct {
			Value      decimal.Decimal `json:"Value"`
			CurrencyID string          `json:"CurrencyID"`
		} `json:"CurrentPrice"`
		Quantity     int    `json:"Quantity"`
		QuantitySold int    `json:"QuantitySold"`
		ViewItemURL  string `json:"ViewItemURL"`
	} `json:"Item"`
}

func (c *EbayClient) Search(ctx context.Context, cfg models.RetailerConfig, searchTerm string) (Listing, error) {
	endpoint := cfg.API.SearchURL
	if endpoint == "" {
		endpoint = cfg.BaseURL
	}

	var out ebayFindingResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"OPERATION-NAME":                 "findItemsByKeywords",
			"SERVICE-VERSION":                "1.0.0",
			"SECURITY-APPNAME":               cfg.API.APIKey,
			"RESPONSE-DATA-FORMAT":           "JSON",
			"keywords":                       searchTerm,
			"paginationInput.entriesPerPage": "1",
		}).
		SetResult(&out).
		Get(endpoint)
	if err != nil {
		return Listing{}, err
	}
	if resp.IsError() {
		return Listing{}, statusError(resp)
	}

	for _, r := range out.FindItemsByKeywordsResponse {
		for _, sr := range r.SearchResult {
			for _, item := range sr.Item {
				if len(item.ItemID) == 0 {
					continue
				}
				listing := Listing{ItemID: item.ItemID[0]}
				if len(item.ViewItemURL) > 0 {
					listing.URL = item.ViewItemURL[0]
				}
				return listing, nil
			}
		}
	}
	return Listing{}, ErrNotFound
}

func (c *EbayClient) Item(ctx context.Context, cfg models.RetailerConfig, listing Listing) (models.ProductPrice, error) {
	if listing.ItemID == "" {
		return models.ProductPrice{}, errors.New("ebay item id is required")
	}

	var out ebaySingleItemResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"callname":         "GetSingleItem",
			"responseencoding": "JSON",
			"appid":            cfg.API.APIKey,
			"siteid":           "0",
			"version":          "967",
			"ItemID":           listing.ItemID,
			"IncludeSelector":  "Details",
		}).
		SetResult(&out).
		Get(cfg.BaseURL)
	if err != nil {
		return models.ProductPrice{}, err
	}
	if resp.IsError() {
		return models.ProductPrice{}, statusError(resp)
	}
	if out.Item == nil {
		return models.ProductPrice{}, ErrNotFound
	}

	currency := models.Currency(out.Item.CurrentPrice.CurrencyID)
	if currency == "" {
		currency = cfg.Country.Currency()
	}
	availability := models.OutOfStock
	if remaining := out.Item.Quantity - out.Item.QuantitySold; remaining > 0 {
		availability = models.InStock
		if remaining <= 3 {
			availability = models.LimitedStock
		}
	}
	sourceURL := out.Item.ViewItemURL
	if sourceURL == "" {
		sourceURL = listing.URL
	}

	return models.ProductPrice{
		Retailer:     cfg.Name,
		Price:        out.Item.CurrentPrice.Value,
		Currency:     currency,
		Availability: availability,
		SourceURL:    sourceURL,
		LastUpdated:  time.Now(),
	}, nil
}

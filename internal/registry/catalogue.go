package registry

import (
	"github.com/rs/zerolog"
	"pricewatch-api/internal/models"
)

const desktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// APIKeys are the vendor credentials for API-backed retailers. A retailer
// whose key is empty is left out of the default catalogue.
type APIKeys struct {
	Walmart string
	Ebay    string
}

// Default builds a registry with the built-in US and BR retailers.
func Default(keys APIKeys, logger zerolog.Logger) (*Registry, error) {
	reg := New()
	for _, cfg := range Catalogue(keys) {
		if err := reg.Register(cfg); err != nil {
			return nil, err
		}
	}
	if keys.Walmart == "" {
		logger.Warn().Str("retailer", "Walmart").Msg("No API key configured, retailer disabled")
	}
	if keys.Ebay == "" {
		logger.Warn().Str("retailer", "eBay").Msg("No API key configured, retailer disabled")
	}
	logger.Info().Int("retailers", reg.Len()).Msg("Initialized retailers for price tracking")
	return reg, nil
}

func Catalogue(keys APIKeys) []models.RetailerConfig {
	english := map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept-Language": "en-US,en;q=0.9",
	}
	portuguese := map[string]string{
		"User-Agent":      desktopUserAgent,
		"Accept-Language": "pt-BR,pt;q=0.9,en;q=0.5",
	}

	var out []models.RetailerConfig
	out = append(out, models.NewScrapeRetailer("Amazon", models.CountryUS, "https://www.amazon.com", 30,
		models.ScrapeAccess{
			SearchPath: "/s?k={query}",
			Rules: models.ExtractionRules{
				Price:         ".a-price .a-offscreen",
				OriginalPrice: ".a-text-price .a-offscreen",
				Title:         "#productTitle",
				Image:         "#landingImage",
				Availability:  "#availability span",
				Rating:        ".a-icon-alt",
				Reviews:       "#acrCustomerReviewText",
			},
		}, english))

	if keys.Walmart != "" {
		out = append(out, models.NewAPIRetailer("Walmart", models.CountryUS, "https://api.walmart.com/v1", 60,
			models.APIAccess{Vendor: models.VendorWalmart, APIKey: keys.Walmart}))
	}
	if keys.Ebay != "" {
		out = append(out, models.NewAPIRetailer("eBay", models.CountryUS, "https://api.ebay.com/ws/api.dll", 45,
			models.APIAccess{
				Vendor:    models.VendorEbay,
				APIKey:    keys.Ebay,
				SearchURL: "https://svcs.ebay.com/services/search/FindingService/v1",
			}))
	}

	out = append(out,
		models.NewScrapeRetailer("Target", models.CountryUS, "https://www.target.com", 25,
			models.ScrapeAccess{
				SearchPath: "/s?searchTerm={query}",
				Rules: models.ExtractionRules{
					Price:        `[data-test="product-price"]`,
					Title:        `[data-test="product-title"]`,
					Image:        "picture img",
					Availability: `[data-test="availability-text"]`,
				},
			}, english),
		models.NewScrapeRetailer("Best Buy", models.CountryUS, "https://www.bestbuy.com", 30,
			models.ScrapeAccess{
				SearchPath: "/site/searchpage.jsp?st={query}",
				Rules: models.ExtractionRules{
					Price:        ".priceView-customer-price span",
					Title:        ".sku-title h1",
					Image:        ".primary-image img",
					Availability: ".fulfillment-add-to-cart-button",
				},
			}, english),
		models.NewScrapeRetailer("Newegg", models.CountryUS, "https://www.newegg.com", 20,
			models.ScrapeAccess{
				SearchPath: "/p/pl?d={query}",
				Rules: models.ExtractionRules{
					Price:        ".price-current",
					Title:        ".product-title",
					Image:        ".product-view-img-original img",
					Availability: ".flags-body",
				},
			}, english),
		models.NewScrapeRetailer("AliExpress", models.CountryUS, "https://www.aliexpress.us", 15,
			models.ScrapeAccess{
				SearchPath: "/w/wholesale-{query}.html",
				Rules: models.ExtractionRules{
					Price:        ".notranslate",
					Title:        ".product-title-text",
					Image:        ".magnifier-image img",
					Availability: ".quantity-info",
					Rating:       ".overview-rating-average",
					Reviews:      ".reviewer-reviews",
				},
			}, map[string]string{
				"User-Agent":      desktopUserAgent,
				"Accept-Language": "en-US,en;q=0.9",
				"Referer":         "https://www.aliexpress.us/",
			}),
		models.NewScrapeRetailer("Temu", models.CountryUS, "https://www.temu.com", 20,
			models.ScrapeAccess{
				SearchPath: "/search_result.html?search_key={query}",
				Rules: models.ExtractionRules{
					Price:        `[class*="price"], [data-testid*="price"]`,
					Title:        `[class*="title"], h1`,
					Image:        `[class*="image"] img, .swiper-slide img`,
					Availability: `[class*="stock"], [class*="inventory"]`,
					Rating:       `[class*="rating"]`,
					Reviews:      `[class*="review"]`,
				},
			}, map[string]string{
				"User-Agent": "Mozilla/5.0 (iPhone; CPU iPhone OS 14_7_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.1.2 Mobile/15E148 Safari/604.1",
			}),
		models.NewScrapeRetailer("Shopee", models.CountryUS, "https://shopee.com", 15,
			models.ScrapeAccess{
				SearchPath: "/search?keyword={query}",
				Rules: models.ExtractionRules{
					Price:        `[class*="price"]`,
					Title:        `[class*="title"]`,
					Image:        ".page-product__media img",
					Availability: `[class*="stock"]`,
					Rating:       `[class*="rating"]`,
				},
			}, english),
	)

	out = append(out,
		models.NewScrapeRetailer("Magazine Luiza", models.CountryBR, "https://www.magazineluiza.com.br", 30,
			models.ScrapeAccess{
				SearchPath: "/busca/{query}",
				Rules: models.ExtractionRules{
					Price:        `[data-testid="price-value"]`,
					Title:        `[data-testid="heading-product-title"]`,
					Image:        `[data-testid="image-selected-thumbnail"]`,
					Availability: `[data-testid="availability"]`,
				},
			}, portuguese),
		models.NewScrapeRetailer("Submarino", models.CountryBR, "https://www.submarino.com.br", 25,
			models.ScrapeAccess{
				SearchPath: "/busca?q={query}",
				Rules: models.ExtractionRules{
					Price:        ".sales-price",
					Title:        ".product-title",
					Image:        ".showcase-product-card-image img",
					Availability: ".btn-buy",
				},
			}, portuguese),
		models.NewScrapeRetailer("KaBuM!", models.CountryBR, "https://www.kabum.com.br", 30,
			models.ScrapeAccess{
				SearchPath: "/busca/{query}",
				Rules: models.ExtractionRules{
					Price:        ".finalPrice",
					Title:        ".nameCard",
					Image:        ".imageCard img",
					Availability: ".availability",
				},
			}, portuguese),
		models.NewScrapeRetailer("Terabyte Shop", models.CountryBR, "https://www.terabyteshop.com.br", 20,
			models.ScrapeAccess{
				SearchPath: "/busca?str={query}",
				Rules: models.ExtractionRules{
					Price:        ".prod-new-price",
					Title:        ".prod-name",
					Image:        ".prod-image img",
					Availability: ".prod-availability",
				},
			}, portuguese),
		models.NewScrapeRetailer("Mercado Livre", models.CountryBR, "https://www.mercadolivre.com.br", 25,
			models.ScrapeAccess{
				SearchPath: "/{query}",
				Rules: models.ExtractionRules{
					Price:        ".andes-money-amount__fraction",
					Title:        ".ui-pdp-title",
					Image:        ".ui-pdp-image",
					Availability: ".ui-pdp-buybox__quantity",
				},
			}, portuguese),
		models.NewScrapeRetailer("Casas Bahia", models.CountryBR, "https://www.casasbahia.com.br", 20,
			models.ScrapeAccess{
				SearchPath: "/busca/{query}",
				Rules: models.ExtractionRules{
					Price:         `[data-testid="product-price-value"]`,
					OriginalPrice: `[data-testid="price-original"]`,
					Title:         `[data-testid="product-title"]`,
					Image:         ".slick-slide img",
					Availability:  `[data-testid="buy-button"]`,
				},
			}, portuguese),
		models.NewScrapeRetailer("Extra", models.CountryBR, "https://www.extra.com.br", 20,
			models.ScrapeAccess{
				SearchPath: "/busca?q={query}",
				Rules: models.ExtractionRules{
					Price:         `[data-testid="product-price-value"]`,
					OriginalPrice: `[data-testid="price-original"]`,
					Title:         `[data-testid="product-name"]`,
					Image:         ".ProductImage img",
					Availability:  `[data-testid="add-to-cart"]`,
				},
			}, portuguese),
		models.NewScrapeRetailer("Americanas", models.CountryBR, "https://www.americanas.com.br", 25,
			models.ScrapeAccess{
				SearchPath: "/busca/{query}",
				Rules: models.ExtractionRules{
					Price:         `[data-testid="price-value"]`,
					OriginalPrice: `[data-testid="price-original"]`,
					Title:         `[data-testid="product-name"]`,
					Image:         ".product-image img",
					Availability:  `[data-testid="buy-button"]`,
				},
			}, portuguese),
		models.NewScrapeRetailer("AliExpress Brasil", models.CountryBR, "https://pt.aliexpress.com", 15,
			models.ScrapeAccess{
				SearchPath: "/w/wholesale-{query}.html",
				Rules: models.ExtractionRules{
					Price:        ".notranslate",
					Title:        ".product-title-text",
					Image:        ".magnifier-image img",
					Availability: ".quantity-info",
					Rating:       ".overview-rating-average",
				},
			}, portuguese),
		models.NewScrapeRetailer("Shopee Brasil", models.CountryBR, "https://shopee.com.br", 15,
			models.ScrapeAccess{
				SearchPath: "/search?keyword={query}",
				Rules: models.ExtractionRules{
					Price:        `[class*="price"]`,
					Title:        `[class*="title"]`,
					Image:        ".page-product__media img",
					Availability: `[class*="stock"]`,
				},
			}, portuguese),
	)
	return out
}

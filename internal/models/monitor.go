package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultChangeThresholdPercent = 5.0

// MonitorSubscription is a standing request by one owner to watch one product.
type MonitorSubscription struct {
	ID                     string    `json:"subscription_id"`
	ProductKey             string    `json:"product_key"`
	SearchTerm             string    `json:"search_term"`
	OwnerID                string    `json:"owner_id"`
	ChangeThresholdPercent float64   `json:"change_threshold_percent"`
	CreatedAt              time.Time `json:"created_at"`
	ExpiresAt              time.Time `json:"expires_at,omitempty"`
	Active                 bool      `json:"active"`
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type PriceChangeEvent struct {
	ProductKey    string          `json:"product_key"`
	Retailer      string          `json:"retailer"`
	OldPrice      decimal.Decimal `json:"old_price"`
	NewPrice      decimal.Decimal `json:"new_price"`
	ChangePercent float64         `json:"change_percent"`
	Direction     Direction       `json:"direction"`
	Timestamp     time.Time       `json:"timestamp"`

	// OwnerIDs lists the subscribers whose threshold this change cleared.
	OwnerIDs       []string `json:"owner_ids,omitempty"`
	SubscriptionID string   `json:"subscription_id,omitempty"`
}

func (PriceChangeEvent) EventName() string { return "significant_price_change" }

// PriceUpdate is published for every successful per-retailer fetch.
type PriceUpdate struct {
	ProductKey string          `json:"product_key"`
	Retailer   string          `json:"retailer"`
	Price      decimal.Decimal `json:"price"`
	Currency   Currency        `json:"currency"`
}

// ComparisonSummary is published when an aggregation run completes.
type ComparisonSummary struct {
	ProductKey  string           `json:"product_key"`
	SearchTerm  string           `json:"search_term"`
	PriceCount  int              `json:"price_count"`
	LowestPrice *decimal.Decimal `json:"lowest_price"`
}

type HistoryPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Retailer  string          `json:"retailer"`
	Currency  Currency        `json:"currency,omitempty"`
}

package models

type CompareRequest struct {
	SearchTerm string `json:"searchTerm" binding:"required"`
	ProductKey string `json:"productKey"`
	Country    string `json:"country"`
}

type StartMonitorRequest struct {
	ProductKey string   `json:"productKey" binding:"required"`
	SearchTerm string   `json:"searchTerm" binding:"required"`
	OwnerID    string   `json:"ownerId" binding:"required"`
	Threshold  *float64 `json:"threshold"`
}

type StartMonitorResponse struct {
	SubscriptionID string `json:"subscription_id"`
	Active         bool   `json:"active"`
}

type StopMonitorRequest struct {
	ProductKey string `json:"productKey" binding:"required"`
	OwnerID    string `json:"ownerId" binding:"required"`
}

type StopMonitorResponse struct {
	Active bool `json:"active"`
}

type HistoryRequest struct {
	ProductKey string
	Timeframe  string
	Retailer   string
}

type HistoryResponse struct {
	ProductKey string         `json:"product_key"`
	Timeframe  string         `json:"timeframe"`
	History    []HistoryPoint `json:"history"`
	FromCache  bool           `json:"from_cache"`
}

type SingleRequest struct {
	Retailer   string `json:"retailer" binding:"required"`
	ProductURL string `json:"productUrl"`
	SearchTerm string `json:"searchTerm"`
}

type BulkProduct struct {
	ProductKey string `json:"id"`
	SearchTerm string `json:"searchTerm"`
}

type BulkCompareRequest struct {
	Products []BulkProduct `json:"products"`
	Country  string        `json:"country"`
}

type BulkCompareItem struct {
	ProductKey string            `json:"product_key"`
	SearchTerm string            `json:"search_term"`
	Result     *ComparisonResult `json:"result,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
}

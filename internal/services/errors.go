package services

import (
	"errors"
	"fmt"
)

var (
	ErrAggregation      = errors.New("aggregation failed")
	ErrInvalidThreshold = errors.New("change threshold must be greater than 0 and at most 100")
	ErrInvalidTimeframe = errors.New("invalid timeframe")
	ErrTickSkipped      = errors.New("previous monitor tick still running")
)

// AggregationError is returned for invalid input or a registry with nothing
// to query. Individual retailer failures never produce one.
type AggregationError struct {
	Reason string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation failed: %s", e.Reason)
}

func (e *AggregationError) Is(target error) bool { return target == ErrAggregation }

// MonitorTickError reports a failed poll. It is logged and the subscription
// stays active.
type MonitorTickError struct {
	ProductKey string
	Err        error
}

func (e *MonitorTickError) Error() string {
	return fmt.Sprintf("monitor tick for %s: %v", e.ProductKey, e.Err)
}

func (e *MonitorTickError) Unwrap() error { return e.Err }

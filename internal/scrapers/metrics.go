package scrapers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "pricewatch_fetch_duration_seconds",
	Help:    "Time taken to fetch one retailer price by outcome",
	Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
}, []string{"retailer", "outcome"}) // outcome: ok, not_found, failed

package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricewatch_aggregation_duration_seconds",
		Help:    "Time taken for one aggregation run across all retailers",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	aggregationOffers = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pricewatch_aggregation_offers_count",
		Help:    "Number of retailers that returned a price per aggregation run",
		Buckets: []float64{0, 1, 2, 5, 10, 20},
	})

	comparisonRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_comparison_requests_total",
		Help: "Total number of comparison requests by source",
	}, []string{"source"}) // source: cache, live

	monitorTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_monitor_ticks_total",
		Help: "Total number of monitor polls by outcome",
	}, []string{"outcome"}) // outcome: ok, failed, skipped

	priceChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_significant_price_changes_total",
		Help: "Total number of significant price change events by direction",
	}, []string{"direction"})

	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pricewatch_monitor_active_subscriptions",
		Help: "Number of active monitor subscriptions",
	})
)

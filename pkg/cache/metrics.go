package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_cache_hits_total",
		Help: "Total number of price cache hits by key kind",
	}, []string{"kind"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricewatch_cache_misses_total",
		Help: "Total number of price cache misses by key kind",
	}, []string{"kind"})
)

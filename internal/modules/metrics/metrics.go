package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики шлюза. Регистрируются в глобальном реестре,
// отдаются health-сервером на /metrics.
var (
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "gateway",
		Name:      "api_requests_total",
		Help:      "Exchange API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	APIRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "gateway",
		Name:      "api_retries_total",
		Help:      "Retried exchange API attempts.",
	})

	APIFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "gateway",
		Name:      "api_failovers_total",
		Help:      "Switches to a fallback base URL.",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "gateway",
		Name:      "cache_hits_total",
		Help:      "Gateway cache hits by key class.",
	}, []string{"class"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "gateway",
		Name:      "cache_misses_total",
		Help:      "Gateway cache misses by key class.",
	}, []string{"class"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "perp_bot",
		Subsystem: "trading",
		Name:      "orders_placed_total",
		Help:      "Orders accepted by the exchange, by type.",
	}, []string{"type"})
)

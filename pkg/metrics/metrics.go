package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Business metrics
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotledger_trades_total",
			Help: "Total number of trades recorded",
		},
		[]string{"side", "status"},
	)

	LotsConsumedPerSell = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lotledger_lots_consumed_per_sell",
			Help:    "Number of purchase lots consumed by one sell",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
		},
	)

	CorporateActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotledger_corporate_actions_total",
			Help: "Total number of corporate action adjustments recorded",
		},
		[]string{"kind", "status"},
	)

	PositionCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotledger_position_cache_requests_total",
			Help: "Adjusted position cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error, bypass
	)

	// System metrics
	DatabaseConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lotledger_database_connections",
			Help: "Number of database connections",
		},
		[]string{"state"}, // open, idle, in_use
	)

	CacheRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lotledger_cache_refresh_duration_seconds",
			Help:    "Duration of the scheduled position cache refresh",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)
)

// RecordDBStats publishes the connection pool state onto
// DatabaseConnectionsGauge.
func RecordDBStats(stats sql.DBStats) {
	DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
	DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_ops", Name: "snapshots_applied_total", Help: "Live query snapshots applied, per collection"},
		[]string{"collection"},
	)
	SnapshotDocuments = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "taxi_ops", Name: "snapshot_documents", Help: "Documents in the latest snapshot, per collection"},
		[]string{"collection"},
	)
	SubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_ops", Name: "subscription_errors_total", Help: "Live query subscriptions terminated by an error"},
		[]string{"collection"},
	)

	AlertDerivations = promauto.NewCounter(prometheus.CounterOpts{Namespace: "taxi_ops", Name: "alert_derivations_total", Help: "Times the alert list was recomputed"})
	ActiveAlerts     = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: "taxi_ops", Name: "active_alerts", Help: "Currently derived alerts by severity"},
		[]string{"severity"},
	)

	DashboardClients = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "taxi_ops", Name: "dashboard_clients", Help: "Connected dashboard websocket clients"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "taxi_ops", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxi_ops",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

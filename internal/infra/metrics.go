package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the webhook router. Registered on the default
// registry and served by the /metrics endpoint.
var (
	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_webhook_requests_total",
		Help: "Webhook requests by terminal result.",
	}, []string{"result"}) // success, skipped, rejected, error

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_orders_total",
		Help: "Orders placed per exchange and side.",
	}, []string{"exchange", "side"})

	SkippedAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "router_skipped_alerts_total",
		Help: "Alerts skipped by gate reason.",
	}, []string{"reason"})

	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_journal_failures_total",
		Help: "Best-effort journal calls that failed.",
	})

	SizingDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "router_sizing_degraded_total",
		Help: "Sizing decisions that fell back to the default volatility.",
	})

	WebhookDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "router_webhook_duration_seconds",
		Help:    "End-to-end webhook handling latency.",
		Buckets: prometheus.DefBuckets,
	})
)

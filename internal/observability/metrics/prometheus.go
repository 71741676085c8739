// Package metrics provides Prometheus metrics for the order lifecycle engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	OrdersSubmitted        prometheus.Counter
	ItemsDecided           *prometheus.CounterVec
	PaymentsSettled        prometheus.Counter
	RefillsConsumed        prometheus.Counter
	ReviewBatchDuration    prometheus.Histogram
	NotificationsDelivered prometheus.Counter
	NotificationsFailed    prometheus.Counter
	OutboxPending          prometheus.Gauge
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_submitted_total",
			Help: "Total prescription orders submitted",
		}),
		ItemsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "line_items_decided_total",
			Help: "Total line item adjudications by decision",
		}, []string{"decision"}),
		PaymentsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_settled_total",
			Help: "Total line item payments settled",
		}),
		RefillsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "refills_consumed_total",
			Help: "Total refills consumed",
		}),
		ReviewBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_batch_duration_seconds",
			Help:    "Review batch processing duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		NotificationsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Total customer notifications delivered",
		}),
		NotificationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total notification delivery failures",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending notification outbox entries",
		}),
	}

	prometheus.MustRegister(
		m.OrdersSubmitted,
		m.ItemsDecided,
		m.PaymentsSettled,
		m.RefillsConsumed,
		m.ReviewBatchDuration,
		m.NotificationsDelivered,
		m.NotificationsFailed,
		m.OutboxPending,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

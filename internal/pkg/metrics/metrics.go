// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StockConsumed counts quantity drawn from lots, by item
	StockConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "stock_consumed_total",
		Help:      "Quantity consumed from measured lots.",
	}, []string{"item", "brand"})

	// ConsumeFailures counts rejected consume calls by error kind
	ConsumeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "consume_failures_total",
		Help:      "Consume calls that committed nothing.",
	}, []string{"kind"})

	// LotsTouched observes how many lots one consume item drained
	LotsTouched = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inventory",
		Name:      "consume_lots_touched",
		Help:      "Lots touched per consumed item.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13},
	})

	// RequestTransitions counts request status changes
	RequestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "request_transitions_total",
		Help:      "Request status transitions.",
	}, []string{"from", "to"})

	// AssetsRegistered counts assets created by registration
	AssetsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inventory",
		Name:      "assets_registered_total",
		Help:      "Assets created from arrived requests.",
	})

	// HTTPRequestDuration observes handler latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inventory",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// ObserveTransition records a request status change
func ObserveTransition(from, to string) {
	if from == "" {
		from = "NEW"
	}
	RequestTransitions.WithLabelValues(from, to).Inc()
}

// Package metrics defines the prometheus instrumentation for the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_deliveries_total",
			Help: "Total number of deliveries by terminal status.",
		},
		[]string{"status", "org"},
	)

	AttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_attempts_total",
			Help: "Total number of delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_retries_total",
			Help: "Total number of scheduled retries by reason.",
		},
		[]string{"reason"}, // e.g. http_5xx, timeout, network, circuit_open
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookline_dlq_total",
			Help: "Total number of deliveries moved to the dead letter queue.",
		},
		[]string{"reason"},
	)

	DLQPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hookline_dlq_purged_total",
			Help: "Total number of expired dead letter entries purged.",
		},
	)

	AttemptLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hookline_attempt_latency_seconds",
			Help:    "Latency of webhook delivery attempts.",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookline_retry_queue_depth",
			Help: "Number of redeliveries waiting in the retry queue.",
		},
	)
)

// MustRegister registers all engine metrics on the given registry.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		DeliveriesTotal,
		AttemptsTotal,
		RetriesTotal,
		DLQTotal,
		DLQPurgedTotal,
		AttemptLatency,
		RetryQueueDepth,
	)
}

// RecordDelivery counts a delivery reaching a terminal status.
func RecordDelivery(status, org string) {
	DeliveriesTotal.WithLabelValues(status, org).Inc()
}

// RecordAttempt counts one attempt outcome and observes its latency.
func RecordAttempt(outcome string, latency time.Duration) {
	AttemptsTotal.WithLabelValues(outcome).Inc()
	if latency > 0 {
		AttemptLatency.Observe(latency.Seconds())
	}
}

// RecordRetry counts a scheduled retry by failure reason.
func RecordRetry(reason string) {
	RetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ counts a delivery moved to the DLQ.
func RecordDLQ(reason string) {
	DLQTotal.WithLabelValues(reason).Inc()
}

// RecordDLQPurge counts purged dead letter entries.
func RecordDLQPurge(n int) {
	DLQPurgedTotal.Add(float64(n))
}

// UpdateRetryQueueDepth sets the retry queue depth gauge.
func UpdateRetryQueueDepth(depth float64) {
	RetryQueueDepth.Set(depth)
}

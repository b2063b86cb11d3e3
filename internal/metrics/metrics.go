// Kerbside - Parking Reservation Telemetry and Analytics Pipeline
// Copyright 2026 Kerbside Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openkerb/kerbside

// Package metrics provides Prometheus instrumentation for the telemetry
// pipeline: event capture and loss, batch delivery outcomes, buffer depth,
// query cache efficiency, and transport circuit breaker state.
//
// Metrics are exposed at /metrics by the reference daemon (cmd/kerbside).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event capture metrics

	eventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbside_events_recorded_total",
			Help: "Total telemetry events recorded into the buffer",
		},
		[]string{"type"},
	)

	eventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbside_events_dropped_total",
			Help: "Total telemetry events dropped (capacity cap or permanent delivery failure)",
		},
		[]string{"reason"},
	)

	bufferDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kerbside_buffer_depth",
			Help: "Current number of events queued in the buffer",
		},
	)

	// Batch delivery metrics

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbside_batches_total",
			Help: "Batch flush attempts by outcome (success, transient, permanent)",
		},
		[]string{"outcome"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kerbside_batch_size_events",
			Help:    "Number of events per submitted batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)

	// Query cache metrics

	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kerbside_query_cache_hits_total",
			Help: "Analytics query cache hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kerbside_query_cache_misses_total",
			Help: "Analytics query cache misses (absent or stale)",
		},
	)

	// Remote query metrics

	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kerbside_query_duration_seconds",
			Help:    "Duration of remote analytics queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	queryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kerbside_query_errors_total",
			Help: "Failed remote analytics queries",
		},
		[]string{"endpoint", "category"},
	)

	// Circuit breaker state: 0=closed, 1=open, 2=half-open

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kerbside_circuit_breaker_state",
			Help: "Transport circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
)

// RecordEventRecorded counts one captured event by type.
func RecordEventRecorded(eventType string) {
	eventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordEventsDropped counts dropped events by reason.
func RecordEventsDropped(reason string, n int) {
	eventsDropped.WithLabelValues(reason).Add(float64(n))
}

// SetBufferDepth updates the buffer depth gauge.
func SetBufferDepth(depth int) {
	bufferDepth.Set(float64(depth))
}

// RecordBatch counts a flush attempt by outcome and observes its size.
func RecordBatch(outcome string, events int) {
	batchesTotal.WithLabelValues(outcome).Inc()
	batchSize.Observe(float64(events))
}

// RecordCacheHit counts a query cache hit.
func RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss counts a query cache miss.
func RecordCacheMiss() {
	cacheMisses.Inc()
}

// ObserveQueryDuration records the latency of a remote analytics query.
func ObserveQueryDuration(endpoint string, d time.Duration) {
	queryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// RecordQueryError counts a failed remote analytics query.
func RecordQueryError(endpoint, category string) {
	queryErrors.WithLabelValues(endpoint, category).Inc()
}

// SetBreakerState updates the circuit breaker state gauge.
func SetBreakerState(name string, state float64) {
	breakerState.WithLabelValues(name).Set(state)
}

// NRTSync - Near-Real-Time Dataset Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/nrtsync

// Package metrics exposes the Prometheus instrumentation for sync runs, the
// store boundary and outbound HTTP clients. Collectors register with the
// default registry through promauto and are served by the API's /metrics
// route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrtsync_sync_duration_seconds",
			Help:    "Duration of dataset sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"dataset"},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_sync_runs_total",
			Help: "Total number of sync runs by terminal state",
		},
		[]string{"dataset", "state"}, // state: "done", "failed"
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nrtsync_last_success_timestamp",
			Help: "Unix timestamp of the last successful sync run",
		},
		[]string{"dataset"},
	)

	RowsInserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_rows_inserted_total",
			Help: "Total number of new rows inserted",
		},
		[]string{"dataset"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_rows_dropped_total",
			Help: "Total number of rows not inserted or removed by retention",
		},
		[]string{"dataset", "reason"}, // reason: "retention", "rejected", "truncated"
	)

	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_pages_fetched_total",
			Help: "Total number of source pages fetched",
		},
		[]string{"dataset"},
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_fetch_errors_total",
			Help: "Total number of source fetch errors",
		},
		[]string{"dataset", "kind"}, // kind: "transient", "fatal"
	)

	FreshnessReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_freshness_reports_total",
			Help: "Total number of last-updated reports sent to the catalog",
		},
		[]string{"dataset", "result"}, // result: "success", "failure"
	)

	// Store metrics
	StoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrtsync_store_request_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_store_errors_total",
			Help: "Total number of failed store operations",
		},
		[]string{"backend", "op"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_store_retries_total",
			Help: "Total number of retried store operations",
		},
		[]string{"op"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Ops API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nrtsync_api_request_duration_seconds",
			Help:    "Duration of ops API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Event publishing metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nrtsync_events_published_total",
			Help: "Total number of run events published",
		},
		[]string{"topic", "result"},
	)
)

// RunStats is the subset of a sync run summary recorded as metrics.
type RunStats struct {
	Dataset       string
	Failed        bool
	Duration      time.Duration
	NewRows       int
	PagesFetched  int
	PagesSkipped  int
	RowsRejected  int
	RowsTruncated int
	RowsDropped   int
}

// RecordSyncRun records the outcome of one dataset sync run.
func RecordSyncRun(s RunStats) {
	SyncDuration.WithLabelValues(s.Dataset).Observe(s.Duration.Seconds())
	PagesFetched.WithLabelValues(s.Dataset).Add(float64(s.PagesFetched))
	if s.PagesSkipped > 0 {
		FetchErrors.WithLabelValues(s.Dataset, "transient").Add(float64(s.PagesSkipped))
	}
	RowsInserted.WithLabelValues(s.Dataset).Add(float64(s.NewRows))
	addDropped(s.Dataset, "rejected", s.RowsRejected)
	addDropped(s.Dataset, "truncated", s.RowsTruncated)
	addDropped(s.Dataset, "retention", s.RowsDropped)

	if s.Failed {
		SyncRuns.WithLabelValues(s.Dataset, "failed").Inc()
		return
	}
	SyncRuns.WithLabelValues(s.Dataset, "done").Inc()
	SyncLastSuccess.WithLabelValues(s.Dataset).Set(float64(time.Now().Unix()))
}

func addDropped(dataset, reason string, n int) {
	if n > 0 {
		RowsDropped.WithLabelValues(dataset, reason).Add(float64(n))
	}
}

// RecordFatalFetch counts a fetch error that aborted a run.
func RecordFatalFetch(dataset string) {
	FetchErrors.WithLabelValues(dataset, "fatal").Inc()
}

// RecordStoreOp records the latency and outcome of a store operation.
func RecordStoreOp(backend, op string, duration time.Duration, err error) {
	StoreRequestDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
	if err != nil {
		StoreErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordFreshnessReport records a catalog last-updated call.
func RecordFreshnessReport(dataset string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	FreshnessReports.WithLabelValues(dataset, result).Inc()
}

// RecordAPIRequest records an ops API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordEventPublish records a run event publish attempt.
func RecordEventPublish(topic string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	EventsPublished.WithLabelValues(topic, result).Inc()
}

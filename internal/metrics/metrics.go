// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wizarr_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Media server client metrics
	MediaRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wizarr_media_request_duration_seconds",
			Help:    "Duration of outbound media server requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"server_type", "method"},
	)

	MediaRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_media_requests_total",
			Help: "Outbound media server requests by HTTP status",
		},
		[]string{"server_type", "status"},
	)

	MediaRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_media_rate_limited_total",
			Help: "HTTP 429 responses received from media servers",
		},
		[]string{"server_type"},
	)

	TokenCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_token_cache_requests_total",
			Help: "Bearer token cache lookups",
		},
		[]string{"server_type", "result"}, // result: "hit", "miss"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wizarr_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wizarr_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Reconciliation Metrics
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wizarr_user_sync_duration_seconds",
			Help:    "Duration of roster reconciliation per server",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"server_type"},
	)

	SyncChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_user_sync_changes_total",
			Help: "Local users inserted, deleted, updated or adopted by reconciliation",
		},
		[]string{"server_type", "change"},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_user_sync_errors_total",
			Help: "Reconciliation failures by stage",
		},
		[]string{"server_type", "stage"}, // stage: "remote", "structural", "metadata"
	)

	SyncLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wizarr_user_sync_last_success_timestamp",
			Help: "Unix time of the last successful reconciliation",
		},
		[]string{"server_id"},
	)

	// Expiry Sweep Metrics
	ExpirySweepRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wizarr_expiry_sweep_runs_total",
			Help: "Number of expiry sweeps executed",
		},
	)

	ExpiredUsersDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wizarr_expired_users_deleted_total",
			Help: "Expired users removed remotely and locally",
		},
	)

	ExpiredUserFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wizarr_expired_user_failures_total",
			Help: "Expired users whose removal failed and will be retried",
		},
	)

	// Invitation Metrics
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_invitation_redemptions_total",
			Help: "Invitation redemptions by server type and outcome",
		},
		[]string{"server_type", "outcome"},
	)

	RedemptionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wizarr_invitation_redemption_duration_seconds",
			Help:    "End-to-end redemption time",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_notifications_total",
			Help: "Notification deliveries by event type and result",
		},
		[]string{"event", "result"},
	)

	RequestHandoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_request_manager_handoffs_total",
			Help: "Provisioned users handed to request managers",
		},
		[]string{"integration", "result"}, // result: "success", "skipped", "failure"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizarr_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wizarr_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordMediaRequest records one outbound media server call.
func RecordMediaRequest(serverType, method string, status int, duration time.Duration) {
	MediaRequestDuration.WithLabelValues(serverType, method).Observe(duration.Seconds())
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	MediaRequestsTotal.WithLabelValues(serverType, label).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSync records one reconciliation run.
func RecordSync(serverType, serverID string, duration time.Duration, inserted, deleted, updated, adopted int, err error) {
	SyncDuration.WithLabelValues(serverType).Observe(duration.Seconds())
	SyncChanges.WithLabelValues(serverType, "inserted").Add(float64(inserted))
	SyncChanges.WithLabelValues(serverType, "deleted").Add(float64(deleted))
	SyncChanges.WithLabelValues(serverType, "updated").Add(float64(updated))
	SyncChanges.WithLabelValues(serverType, "adopted").Add(float64(adopted))
	if err == nil {
		SyncLastSuccess.WithLabelValues(serverID).Set(float64(time.Now().Unix()))
	}
}

// RecordRedemption records a finished redemption attempt.
func RecordRedemption(serverType, outcome string, duration time.Duration) {
	Redemptions.WithLabelValues(serverType, outcome).Inc()
	RedemptionDuration.Observe(duration.Seconds())
}

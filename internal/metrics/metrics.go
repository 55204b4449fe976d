// Meadstats - Untappd Checkin Analytics
// Copyright 2026 Meadstats Authors
// SPDX-License-Identifier: MIT
// https://github.com/meadstats/meadstats

// Package metrics provides Prometheus instrumentation for Meadstats.
//
// Metrics are exposed at /metrics in Prometheus text format and cover
// the Untappd client, the sync coordinator, the checkin store, and the
// HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Untappd client metrics
	UntappdRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "untappd_requests_total",
			Help: "Total number of Untappd API requests",
		},
		[]string{"method", "outcome"}, // outcome: success, rate_limited, auth_error, transient, parse_error
	)

	UntappdRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "untappd_request_duration_seconds",
			Help:    "Untappd API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	UntappdRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "untappd_rate_limit_waits_total",
			Help: "Times the client paced or backed off for rate limiting",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Sync metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of per-user sync runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	SyncCheckinsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_checkins_inserted_total",
			Help: "Total checkins inserted by sync runs",
		},
	)

	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync runs by outcome",
		},
		[]string{"outcome"}, // outcome: success, failed, auth_failed, rejected
	)

	SyncPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_pages_fetched_total",
			Help: "Pages fetched from the Untappd API during sync",
		},
	)

	// Store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of checkin store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Failed checkin store queries",
		},
		[]string{"operation"},
	)

	// Aggregation metrics
	AggregateRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_recomputes_total",
			Help: "Snapshot computations by mode",
		},
		[]string{"mode"}, // mode: full, incremental
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	StatsServedStale = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_served_stale_total",
			Help: "Stats responses served from a stale snapshot",
		},
	)
)

/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OTLP tracing for the
// dispatcher.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatch run metrics
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_runs_total",
		Help: "Dispatch runs by result (completed, empty_slot, no_items, locked_out).",
	}, []string{"result"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skald_run_duration_seconds",
		Help:    "Wall time of a full dispatch run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})

	ItemsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_items_processed_total",
		Help: "Processed submissions by outcome.",
	}, []string{"outcome"})

	UsersSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skald_users_skipped_total",
		Help: "Scheduled users skipped because the per-run cap was exceeded.",
	})

	RunLockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_run_lock_acquisitions_total",
		Help: "Slot run lock attempts by result (acquired, held_elsewhere, error).",
	}, []string{"result"})

	FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skald_fetch_duration_seconds",
		Help:    "Payload download duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "skald_publish_duration_seconds",
		Help:    "Payload upload duration.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// Database metrics (recorded via GORM callbacks)
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skald_database_query_duration_seconds",
		Help:    "Database operation duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_database_errors_total",
		Help: "Database operation errors.",
	}, []string{"operation", "reason"})

	// HTTP metrics (serve mode)
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skald_http_request_duration_seconds",
		Help:    "HTTP request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skald_http_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skald_http_active_connections",
		Help: "In-flight HTTP requests.",
	})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

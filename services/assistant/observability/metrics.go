// Copyright (C) 2025 Veridocs, Inc. (eng@veridocs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the query pipeline.
//
// # Description
//
// Metrics cover the streaming ask endpoint end to end:
//   - Request counters by classification, strategy and final state
//   - Stage latency histograms (analysis, retrieval, generation)
//   - Time-to-first-token and total stream duration
//   - Active stream gauge, fallback and client-disconnect counters
//
// Exposed at /metrics; scrape with Prometheus.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "dataroom"

const askSubsystem = "ask"

// AskMetrics holds all Prometheus metrics for the question endpoint.
// Initialize once at startup via InitMetrics().
type AskMetrics struct {
	// RequestsTotal counts requests by classification and final state.
	// Labels: classification (informational, chitchat, abusive),
	// state (completed, aborted, degraded, fallback)
	RequestsTotal *prometheus.CounterVec

	// StrategiesTotal counts strategy selections.
	// Labels: strategy
	StrategiesTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage latency.
	// Labels: stage (analysis, access, retrieval, generation)
	StageDurationSeconds *prometheus.HistogramVec

	// TimeToFirstTokenSeconds measures latency to the first streamed token.
	TimeToFirstTokenSeconds prometheus.Histogram

	// StreamDurationSeconds measures total stream duration.
	// Labels: state
	StreamDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open answer streams.
	ActiveStreams prometheus.Gauge

	// FallbacksTotal counts fallback responses by reason.
	// Labels: reason (analysis_timeout, access, retrieval_miss, internal)
	FallbacksTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts caller-initiated aborts.
	// Labels: phase (pre_stream, mid_stream)
	ClientDisconnectsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts heartbeat events sent during long stages.
	KeepAlivesTotal prometheus.Counter
}

// DefaultMetrics is the process-wide metrics instance set by InitMetrics.
var DefaultMetrics *AskMetrics

// InitMetrics creates all pipeline metrics on the default registry and
// stores them as DefaultMetrics. Call once at startup; a second call panics
// on duplicate registration.
func InitMetrics() *AskMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates all pipeline metrics on the given registry. Tests pass
// a fresh prometheus.NewRegistry() so registration never collides across
// cases.
func NewMetrics(reg prometheus.Registerer) *AskMetrics {
	factory := promauto.With(reg)

	return &AskMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "requests_total",
				Help:      "Total ask requests by classification and final state",
			},
			[]string{"classification", "state"},
		),

		StrategiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "strategies_total",
				Help:      "Total strategy selections",
			},
			[]string{"strategy"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Per-stage pipeline latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"stage"},
		),

		TimeToFirstTokenSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first streamed token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
		),

		StreamDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total answer stream duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120},
			},
			[]string{"state"},
		),

		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open answer streams",
			},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "fallbacks_total",
				Help:      "Total fallback responses by reason",
			},
			[]string{"reason"},
		),

		ClientDisconnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total caller-initiated aborts by phase",
			},
			[]string{"phase"},
		),

		KeepAlivesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "keepalives_total",
				Help:      "Total heartbeat events sent during long stages",
			},
		),
	}
}

// FallbackReason labels for FallbacksTotal.
type FallbackReason string

const (
	ReasonAnalysisTimeout FallbackReason = "analysis_timeout"
	ReasonAccess          FallbackReason = "access"
	ReasonRetrievalMiss   FallbackReason = "retrieval_miss"
	ReasonInternal        FallbackReason = "internal"
)

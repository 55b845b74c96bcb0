// Copyright (C) 2026 CaseForge Labs (oss@caseforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the test case
// generation service.
//
// # Description
//
// Metrics cover the generation workflow end to end:
//   - Request counters by operation and status
//   - Latency histograms (time to first token, full generation duration)
//   - Active stream gauge
//   - Guard contention and client disconnect counters
//
// # Integration
//
// Exposed via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "caseforge"

const generationSubsystem = "generation"

// GenerationMetrics holds all Prometheus metrics for workflow operations.
// Initialize once at startup via InitMetrics().
type GenerationMetrics struct {
	// RequestsTotal counts workflow operations by operation and status.
	// Labels: operation (start, submit_answers, select_case, diagram), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// TimeToFirstTokenSeconds measures latency to the first streamed token.
	// Labels: operation
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// GenerationDurationSeconds measures full operation duration.
	// Labels: operation, status
	GenerationDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	// Labels: operation
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by operation and error code.
	// Labels: operation, error_code
	ErrorsTotal *prometheus.CounterVec

	// GuardContentionTotal counts requests rejected by the per-session
	// single-flight guard.
	GuardContentionTotal prometheus.Counter

	// KeepAlivesTotal counts keepalive pings sent on streaming responses.
	// Labels: operation
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts clients that dropped mid-stream.
	// Labels: operation
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *GenerationMetrics

// InitMetrics creates and registers all metrics on the default registry.
// Call once at startup; a second call panics on duplicate registration.
func InitMetrics() *GenerationMetrics {
	DefaultMetrics = &GenerationMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "requests_total",
				Help:      "Total workflow operations by operation and status",
			},
			[]string{"operation", "status"},
		),

		TimeToFirstTokenSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "time_to_first_token_seconds",
				Help:      "Time from request to first streamed token in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),

		GenerationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "duration_seconds",
				Help:      "Full workflow operation duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"operation", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"operation"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "errors_total",
				Help:      "Total workflow errors by operation and error code",
			},
			[]string{"operation", "error_code"},
		),

		GuardContentionTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "guard_contention_total",
				Help:      "Requests rejected because a generation was already in flight",
			},
		),

		KeepAlivesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "keepalives_total",
				Help:      "Total keepalive pings sent",
			},
			[]string{"operation"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generationSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"operation"},
		),
	}
	return DefaultMetrics
}

// ErrorCode categorizes an error for metrics labeling.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeGeneration indicates a model call or parse failure.
	ErrorCodeGeneration ErrorCode = "generation_failure"

	// ErrorCodeStageTransition indicates an operation illegal for the stage.
	ErrorCodeStageTransition ErrorCode = "invalid_stage_transition"

	// ErrorCodeInProgress indicates guard contention.
	ErrorCodeInProgress ErrorCode = "generation_in_progress"

	// ErrorCodePrecondition indicates an incomplete diagram subtree.
	ErrorCodePrecondition ErrorCode = "precondition_not_met"

	// ErrorCodeRender indicates diagram rendering failure.
	ErrorCodeRender ErrorCode = "render_failure"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client dropped mid-stream.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// Operation labels the workflow operation handling a request.
type Operation string

const (
	OperationStart         Operation = "start"
	OperationSubmitAnswers Operation = "submit_answers"
	OperationSelectCase    Operation = "select_case"
	OperationDiagram       Operation = "diagram"
)

// RecordRequest records a completed operation.
func (m *GenerationMetrics) RecordRequest(op Operation, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(op), status).Inc()
}

// RecordError records a categorized failure.
func (m *GenerationMetrics) RecordError(op Operation, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(op), string(code)).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *GenerationMetrics) StreamStarted(op Operation) {
	m.ActiveStreams.WithLabelValues(string(op)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *GenerationMetrics) StreamEnded(op Operation) {
	m.ActiveStreams.WithLabelValues(string(op)).Dec()
}

// RecordTimeToFirstToken records first-token latency in seconds.
func (m *GenerationMetrics) RecordTimeToFirstToken(op Operation, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(string(op)).Observe(seconds)
}

// RecordDuration records the full operation duration in seconds.
func (m *GenerationMetrics) RecordDuration(op Operation, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.GenerationDurationSeconds.WithLabelValues(string(op), status).Observe(seconds)
}

// RecordGuardContention counts a request rejected by the guard.
func (m *GenerationMetrics) RecordGuardContention() {
	m.GuardContentionTotal.Inc()
}

// RecordKeepAlive counts one keepalive ping.
func (m *GenerationMetrics) RecordKeepAlive(op Operation) {
	m.KeepAlivesTotal.WithLabelValues(string(op)).Inc()
}

// RecordClientDisconnect counts a client dropped mid-stream.
func (m *GenerationMetrics) RecordClientDisconnect(op Operation) {
	m.ClientDisconnectsTotal.WithLabelValues(string(op)).Inc()
}

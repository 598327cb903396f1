// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the copilot core.
//
// # Description
//
// Metrics cover the full classify, generate, verify, fall back pipeline:
//   - Request counters (by primary intent and outcome)
//   - Grounding violation counters (by violation kind)
//   - Fallback counters (by reason)
//   - Collaborator latency histograms (tool dispatcher, generator)
//   - Active request gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "copilot"

// Subsystem for ask pipeline metrics
const askSubsystem = "ask"

// PipelineMetrics holds all Prometheus metrics for the ask pipeline.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring pipeline
// behavior. Initialize once at startup via InitMetrics().
//
// # Fields
//
//   - RequestsTotal: Counter of requests by primary intent and outcome
//   - ViolationsTotal: Counter of grounding violations by kind
//   - FallbacksTotal: Counter of fallback responses by reason
//   - CollaboratorLatencySeconds: Histogram of collaborator call latency
//   - ActiveRequests: Gauge of requests currently in flight
//
// # Thread Safety
//
// All operations are thread-safe.
type PipelineMetrics struct {
	// RequestsTotal counts completed requests by intent and outcome.
	// Labels: intent (AML_SEARCH, PII_SEARCH, ...), outcome (generated,
	// template, sentinel, clarification)
	RequestsTotal *prometheus.CounterVec

	// ViolationsTotal counts grounding violations by kind.
	// Labels: kind (UnknownIdentifier, NumericMismatch, ...)
	ViolationsTotal *prometheus.CounterVec

	// FallbacksTotal counts fallback responses by reason.
	// Labels: reason (grounding_violation, generator_error,
	// generator_timeout, dispatch_error, contradictory)
	FallbacksTotal *prometheus.CounterVec

	// CollaboratorLatencySeconds measures collaborator call latency.
	// Labels: collaborator (dispatcher, generator), status (success, error)
	CollaboratorLatencySeconds *prometheus.HistogramVec

	// ActiveRequests tracks requests currently being processed.
	ActiveRequests prometheus.Gauge
}

// DefaultMetrics is the singleton instance of PipelineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

var initMetricsOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Safe to call more than once; later calls return the same instance.
//
// # Outputs
//
//   - *PipelineMetrics: The initialized metrics instance.
func InitMetrics() *PipelineMetrics {
	initMetricsOnce.Do(initDefaultMetrics)
	return DefaultMetrics
}

func initDefaultMetrics() {
	DefaultMetrics = &PipelineMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "requests_total",
				Help:      "Total requests by primary intent and outcome",
			},
			[]string{"intent", "outcome"},
		),

		ViolationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "grounding_violations_total",
				Help:      "Total grounding violations by kind",
			},
			[]string{"kind"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "fallbacks_total",
				Help:      "Total fallback responses by reason",
			},
			[]string{"reason"},
		),

		CollaboratorLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "collaborator_latency_seconds",
				Help:      "Collaborator call latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0, 30.0},
			},
			[]string{"collaborator", "status"},
		),

		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: askSubsystem,
				Name:      "active_requests",
				Help:      "Number of requests currently being processed",
			},
		),
	}
}

// =============================================================================
// Fallback Reasons
// =============================================================================

// FallbackReason categorizes why a template fallback was emitted.
type FallbackReason string

const (
	// FallbackGroundingViolation indicates the generated answer failed
	// grounding validation.
	FallbackGroundingViolation FallbackReason = "grounding_violation"

	// FallbackGeneratorError indicates the generator call failed.
	FallbackGeneratorError FallbackReason = "generator_error"

	// FallbackGeneratorTimeout indicates the generator call timed out.
	FallbackGeneratorTimeout FallbackReason = "generator_timeout"

	// FallbackDispatchError indicates the tool dispatcher call failed.
	FallbackDispatchError FallbackReason = "dispatch_error"

	// FallbackContradictory indicates the evidence was flagged
	// contradictory.
	FallbackContradictory FallbackReason = "contradictory"
)

// =============================================================================
// Collaborator Names
// =============================================================================

// Collaborator identifies an external dependency for latency labeling.
type Collaborator string

const (
	// CollaboratorDispatcher is the tool dispatch service.
	CollaboratorDispatcher Collaborator = "dispatcher"

	// CollaboratorGenerator is the LLM generator.
	CollaboratorGenerator Collaborator = "generator"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request.
//
// # Inputs
//
//   - intent: The primary intent the router assigned.
//   - outcome: The path that produced the answer.
func (m *PipelineMetrics) RecordRequest(intent, outcome string) {
	m.RequestsTotal.WithLabelValues(intent, outcome).Inc()
}

// RecordViolations records grounding violations by kind.
//
// # Inputs
//
//   - kinds: Deduplicated violation kind names.
func (m *PipelineMetrics) RecordViolations(kinds []string) {
	for _, kind := range kinds {
		m.ViolationsTotal.WithLabelValues(kind).Inc()
	}
}

// RecordFallback records a fallback response.
//
// # Inputs
//
//   - reason: Why the fallback was taken.
func (m *PipelineMetrics) RecordFallback(reason FallbackReason) {
	m.FallbacksTotal.WithLabelValues(string(reason)).Inc()
}

// RecordCollaboratorLatency records one collaborator call.
//
// # Inputs
//
//   - collaborator: Which dependency was called.
//   - seconds: Call duration in seconds.
//   - success: Whether the call succeeded.
func (m *PipelineMetrics) RecordCollaboratorLatency(collaborator Collaborator, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.CollaboratorLatencySeconds.WithLabelValues(string(collaborator), status).Observe(seconds)
}

// RequestStarted increments the active request gauge.
func (m *PipelineMetrics) RequestStarted() {
	m.ActiveRequests.Inc()
}

// RequestEnded decrements the active request gauge.
func (m *PipelineMetrics) RequestEnded() {
	m.ActiveRequests.Dec()
}

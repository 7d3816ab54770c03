// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the lease reasoning service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring turns:
//   - Turn counters (by intent and outcome)
//   - Safety verdicts (by outcome and rule)
//   - Retrieval results (ok, degraded, unavailable)
//   - Collaborator latency histograms
//   - Committed revisions and resident sessions
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is a no-op on a nil *TurnMetrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "leasecore"

// Subsystem for turn metrics
const turnSubsystem = "turn"

// TurnMetrics holds all Prometheus metrics for turn processing.
//
// # Fields
//
//   - TurnsTotal: Turns by intent and outcome
//   - TurnDurationSeconds: End-to-end turn latency by intent
//   - SafetyVerdictsTotal: Verdicts by outcome
//   - SafetyRuleHitsTotal: Violated rules by rule ID
//   - RetrievalTotal: Retrieval results by status
//   - CollaboratorSeconds: Latency of external calls by collaborator and status
//   - CommitsTotal: Committed revisions by intent
//   - ActiveSessions: Resident sessions
//   - ExportsTotal: PDF exports by status
type TurnMetrics struct {
	TurnsTotal          *prometheus.CounterVec
	TurnDurationSeconds *prometheus.HistogramVec
	SafetyVerdictsTotal *prometheus.CounterVec
	SafetyRuleHitsTotal *prometheus.CounterVec
	RetrievalTotal      *prometheus.CounterVec
	CollaboratorSeconds *prometheus.HistogramVec
	CommitsTotal        *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	ExportsTotal        *prometheus.CounterVec
}

// DefaultMetrics is the process-wide instance. Initialized by InitMetrics.
var DefaultMetrics *TurnMetrics

// InitMetrics registers the metrics with the default Prometheus registry.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *TurnMetrics {
	DefaultMetrics = NewTurnMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewTurnMetrics creates and registers the metrics with reg. Tests pass a
// fresh prometheus.NewRegistry().
func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	f := promauto.With(reg)
	return &TurnMetrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "total",
				Help:      "Total number of turns by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),
		TurnDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"intent"},
		),
		SafetyVerdictsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "safety",
				Name:      "verdicts_total",
				Help:      "Safety verdicts by outcome",
			},
			[]string{"outcome"},
		),
		SafetyRuleHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "safety",
				Name:      "rule_hits_total",
				Help:      "Violated safety rules by rule ID",
			},
			[]string{"rule"},
		),
		RetrievalTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "retrieval",
				Name:      "total",
				Help:      "Retrieval results by status",
			},
			[]string{"status"},
		),
		CollaboratorSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "collaborator",
				Name:      "duration_seconds",
				Help:      "Latency of collaborator calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"collaborator", "status"},
		),
		CommitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "state",
				Name:      "commits_total",
				Help:      "Committed contract revisions by intent",
			},
			[]string{"intent"},
		),
		ActiveSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "state",
				Name:      "active_sessions",
				Help:      "Sessions resident in memory",
			},
		),
		ExportsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "export",
				Name:      "total",
				Help:      "PDF exports by status",
			},
			[]string{"status"},
		),
	}
}

// =============================================================================
// Label values
// =============================================================================

// RetrievalStatus labels a retrieval result.
type RetrievalStatus string

const (
	RetrievalOK          RetrievalStatus = "ok"
	RetrievalDegraded    RetrievalStatus = "degraded"
	RetrievalUnavailable RetrievalStatus = "unavailable"
	RetrievalSkipped     RetrievalStatus = "skipped"
)

// Collaborator labels an external call.
type Collaborator string

const (
	CollaboratorClassifier Collaborator = "classifier"
	CollaboratorRetrieval  Collaborator = "retrieval"
	CollaboratorGenerator  Collaborator = "generator"
	CollaboratorRenderer   Collaborator = "pdf_renderer"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a finished turn.
func (m *TurnMetrics) RecordTurn(intent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(intent, outcome).Inc()
	m.TurnDurationSeconds.WithLabelValues(intent).Observe(seconds)
}

// RecordVerdict records a safety verdict and each violated rule.
func (m *TurnMetrics) RecordVerdict(outcome string, ruleIDs []string) {
	if m == nil {
		return
	}
	m.SafetyVerdictsTotal.WithLabelValues(outcome).Inc()
	for _, id := range ruleIDs {
		m.SafetyRuleHitsTotal.WithLabelValues(id).Inc()
	}
}

// RecordRetrieval records the status of one retrieval.
func (m *TurnMetrics) RecordRetrieval(status RetrievalStatus) {
	if m == nil {
		return
	}
	m.RetrievalTotal.WithLabelValues(string(status)).Inc()
}

// RecordCollaborator records the latency of one collaborator call.
func (m *TurnMetrics) RecordCollaborator(c Collaborator, seconds float64, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.CollaboratorSeconds.WithLabelValues(string(c), status).Observe(seconds)
}

// RecordCommit records a committed revision.
func (m *TurnMetrics) RecordCommit(intent string) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(intent).Inc()
}

// SetActiveSessions sets the resident session gauge.
func (m *TurnMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordExport records a PDF export.
func (m *TurnMetrics) RecordExport(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.ExportsTotal.WithLabelValues(status).Inc()
}

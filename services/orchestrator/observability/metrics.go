// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the backend.
//
// # Description
//
// Metrics cover the agent lifecycle rather than raw HTTP traffic:
// tasks by action and terminal status, phase durations, tool-call
// volume, live event throughput, and connected dashboard clients.
//
// # Integration
//
// Exposed via the /metrics endpoint. All operations are thread-safe
// through Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "haggle"

// AgentMetrics holds the Prometheus metrics for the agent backend.
type AgentMetrics struct {
	// TasksTotal counts tasks reaching a terminal status.
	// Labels: action (negotiate_rate, cancel_service, consult_user),
	// status (completed, failed, needs_followup).
	TasksTotal *prometheus.CounterVec

	// SavingsDollarsTotal accumulates realized monthly savings.
	// Labels: action.
	SavingsDollarsTotal *prometheus.CounterVec

	// PhaseDurationSeconds measures wall time per phase run.
	// Labels: phase (research, call, tool_calls, resolution).
	PhaseDurationSeconds *prometheus.HistogramVec

	// ToolCallsTotal counts agent tool invocations.
	// Labels: tool.
	ToolCallsTotal *prometheus.CounterVec

	// WebhookMessagesTotal counts voice platform server messages.
	// Labels: type (end-of-call-report, status-update, transcript).
	WebhookMessagesTotal *prometheus.CounterVec

	// EventsPublishedTotal counts events pushed to the live bus.
	// Labels: type.
	EventsPublishedTotal *prometheus.CounterVec

	// LiveSubscribers tracks connected SSE and websocket clients.
	// Labels: transport (sse, websocket).
	LiveSubscribers *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *AgentMetrics

// InitMetrics registers all metrics with the default registry. Call
// once at startup; a second call panics on duplicate registration.
func InitMetrics() *AgentMetrics {
	DefaultMetrics = &AgentMetrics{
		TasksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tasks_total",
				Help:      "Tasks reaching a terminal status by action and status",
			},
			[]string{"action", "status"},
		),

		SavingsDollarsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "savings_dollars_total",
				Help:      "Realized monthly savings in dollars by action",
			},
			[]string{"action"},
		),

		PhaseDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "phase_duration_seconds",
				Help:      "Wall time per phase run",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),

		ToolCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tool_calls_total",
				Help:      "Agent tool invocations by tool name",
			},
			[]string{"tool"},
		),

		WebhookMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_messages_total",
				Help:      "Voice platform server messages by type",
			},
			[]string{"type"},
		),

		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_published_total",
				Help:      "Events pushed to the live bus by type",
			},
			[]string{"type"},
		),

		LiveSubscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "live_subscribers",
				Help:      "Connected live feed clients by transport",
			},
			[]string{"transport"},
		),
	}
	return DefaultMetrics
}

// RecordTaskDone records a task reaching a terminal status with its
// realized savings.
func (m *AgentMetrics) RecordTaskDone(action, status string, savings float64) {
	m.TasksTotal.WithLabelValues(action, status).Inc()
	if savings > 0 {
		m.SavingsDollarsTotal.WithLabelValues(action).Add(savings)
	}
}

// RecordToolCall increments the tool invocation counter.
func (m *AgentMetrics) RecordToolCall(tool string) {
	m.ToolCallsTotal.WithLabelValues(tool).Inc()
}

// RecordWebhookMessage increments the webhook message counter.
func (m *AgentMetrics) RecordWebhookMessage(msgType string) {
	m.WebhookMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordEvent increments the published event counter.
func (m *AgentMetrics) RecordEvent(eventType string) {
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// SubscriberConnected increments the live client gauge.
func (m *AgentMetrics) SubscriberConnected(transport string) {
	m.LiveSubscribers.WithLabelValues(transport).Inc()
}

// SubscriberDisconnected decrements the live client gauge.
func (m *AgentMetrics) SubscriberDisconnected(transport string) {
	m.LiveSubscribers.WithLabelValues(transport).Dec()
}

// RecordPhaseDuration records wall time for one phase run.
func (m *AgentMetrics) RecordPhaseDuration(phase string, seconds float64) {
	m.PhaseDurationSeconds.WithLabelValues(phase).Observe(seconds)
}

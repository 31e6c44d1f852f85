/*
 * ChatCLI - Command Line Interface for LLM interaction
 * Copyright (c) 2024 Edilson Freitas
 * License: MIT
 */
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics holds process-wide informational and per-domain metrics: engine version,
// uptime, and the AIOps counters/gauges tracked across a run. Grounded on chatcli's
// ServerMetrics (Info gauge + GaugeFunc uptime pattern) generalized from a chat-server
// info card to this engine's operational surface.
type EngineMetrics struct {
	Info   *prometheus.GaugeVec
	uptime prometheus.GaugeFunc

	EventsDetected  *prometheus.CounterVec
	PlaybookRuns    *prometheus.CounterVec
	ApprovalsPending prometheus.GaugeFunc
	ToolCalls       *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
}

// PendingCounter reports the current number of outstanding approvals, satisfied by
// approval.Manager.PendingCount.
type PendingCounter interface {
	PendingCount() int
}

// RecordToolCall increments sre_tool_calls_total and observes sre_tool_call_duration_seconds
// for one completed MCP tool invocation. outcome is typically "success" or "error".
func (m *EngineMetrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// NewEngineMetrics registers every engine metric on Registry. startTime is used to compute
// uptime; pendingApprovals backs the sre_approvals_pending gauge.
func NewEngineMetrics(version string, startTime time.Time, pendingApprovals PendingCounter) *EngineMetrics {
	info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "engine",
		Name:      "info",
		Help:      "Engine build metadata. Value is always 1.",
	}, []string{"version"})
	info.WithLabelValues(version).Set(1)

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "engine",
		Name:      "uptime_seconds",
		Help:      "Engine uptime in seconds.",
	}, func() float64 {
		return time.Since(startTime).Seconds()
	})

	eventsDetected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "events_detected_total",
		Help:      "ClusterEvents produced by the WatchLoop or the Alertmanager ingress.",
	}, []string{"kind", "severity"})

	playbookRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "playbook_runs_total",
		Help:      "Playbook runs, labeled by playbook id and terminal status.",
	}, []string{"playbook_id", "status"})

	approvalsPending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "approvals_pending",
		Help:      "Approvals currently awaiting a human decision.",
	}, func() float64 {
		if pendingApprovals == nil {
			return 0
		}
		return float64(pendingApprovals.PendingCount())
	})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tool_calls_total",
		Help:      "MCP tool invocations, labeled by tool name and outcome.",
	}, []string{"tool", "outcome"})

	toolCallDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "tool_call_duration_seconds",
		Help:      "MCP tool call latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"tool"})

	Registry.MustRegister(info, uptime, eventsDetected, playbookRuns, approvalsPending, toolCalls, toolCallDuration)

	return &EngineMetrics{
		Info:             info,
		uptime:           uptime,
		EventsDetected:   eventsDetected,
		PlaybookRuns:     playbookRuns,
		ApprovalsPending: approvalsPending,
		ToolCalls:        toolCalls,
		ToolCallDuration: toolCallDuration,
	}
}

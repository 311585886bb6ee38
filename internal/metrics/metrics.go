// ABOUTME: Prometheus counters for the chat-backed persistence layer
// ABOUTME: All methods are nil-safe so components can run without metrics wired

// Package metrics exposes counters for degraded-but-recovered conditions:
// skipped records, permission warnings, and platform call outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the timekeeper collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	skipped       *prometheus.CounterVec
	permission    *prometheus.CounterVec
	platformCalls *prometheus.CounterVec
	sessions      *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timekeeper",
			Name:      "records_skipped_total",
			Help:      "Scanned messages skipped because their payload failed to parse",
		}, []string{"kind"}),
		permission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timekeeper",
			Name:      "permission_denied_total",
			Help:      "Platform operations that were denied and recovered from",
		}, []string{"op"}),
		platformCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timekeeper",
			Name:      "platform_calls_total",
			Help:      "Chat platform calls by operation and result",
		}, []string{"op", "result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "timekeeper",
			Name:      "sessions_recorded_total",
			Help:      "Completed sessions appended to the log",
		}, []string{"task"}),
	}
	m.registry.MustRegister(m.skipped, m.permission, m.platformCalls, m.sessions)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSkipped counts a malformed record of the given kind ("config", "log").
func (m *Metrics) RecordSkipped(kind string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(kind).Inc()
}

// RecordPermissionDenied counts a recovered permission failure.
func (m *Metrics) RecordPermissionDenied(op string) {
	if m == nil {
		return
	}
	m.permission.WithLabelValues(op).Inc()
}

// RecordPlatformCall counts one platform call outcome.
func (m *Metrics) RecordPlatformCall(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.platformCalls.WithLabelValues(op, result).Inc()
}

// RecordSession counts a completed session for task.
func (m *Metrics) RecordSession(task string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(task).Inc()
}

// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IncidentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_agent_incidents_total",
		Help: "Incidents processed, by severity and alert name.",
	}, []string{"severity", "alert_name"})

	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_agent_actions_total",
		Help: "Remediation actions executed, by action and success.",
	}, []string{"action", "success"})

	DecisionConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sre_agent_decision_confidence",
		Help:    "Confidence reported by the advisor per decision.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	PendingApprovals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sre_agent_pending_approvals",
		Help: "Approvals currently waiting for an operator.",
	})

	AgentHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sre_agent_healthy",
		Help: "1 when the agent is up and its dependencies responded at startup.",
	})
)

// RecordAction increments the action counter with a boolean success label.
func RecordAction(action string, success bool) {
	label := "false"
	if success {
		label = "true"
	}
	ActionsTotal.WithLabelValues(action, label).Inc()
}

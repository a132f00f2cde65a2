// Alertmanager webhook payload and per-alert structures.
// Shared by the handler, service and client layers, so they live in model.

package model

import (
	"errors"
	"time"
)

// ErrMalformedAlert is returned at ingress for alerts that cannot enter the
// pipeline. Malformed alerts are reported to the caller and never reach the
// decision engine.
var ErrMalformedAlert = errors.New("malformed alert")

// AlertmanagerWebhook - payload delivered by Alertmanager.
// Multiple alerts may arrive grouped in a single delivery.
type AlertmanagerWebhook struct {
	Version string `json:"version"`

	// Alerts with the same GroupKey are grouped together
	GroupKey string `json:"groupKey"`

	// Number of alerts omitted due to max_alerts, if any
	TruncatedAlerts int    `json:"truncatedAlerts"`
	Status          string `json:"status"`
	Receiver        string `json:"receiver"`

	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`

	Alerts []Alert `json:"alerts"`
}

// Alert - a single alert. Fingerprint is Alertmanager's hash over the label
// set and identifies the same alert across repeated deliveries.
type Alert struct {
	Status string `json:"status"`

	// - alertname: e.g. "PodCrashLoopBackOff", "HighMemoryUsage"
	// - severity: info, warning, critical
	// - namespace: namespace the problem occurred in
	// - pod / node: target resource, when the alert names one
	Labels map[string]string `json:"labels"`

	// - summary: short problem statement
	// - description: detailed problem statement
	Annotations map[string]string `json:"annotations"`

	// StartsAt: when the alert started firing (UTC)
	StartsAt time.Time `json:"startsAt"`

	// EndsAt is only set for resolved alerts.
	// Firing alerts carry the zero time "0001-01-01T00:00:00Z".
	EndsAt time.Time `json:"endsAt"`

	// GeneratorURL: Prometheus query that produced the alert
	GeneratorURL string `json:"generatorURL"`

	Fingerprint string `json:"fingerprint"`
}

// Severity levels accepted by the pipeline.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// IncidentRequest - immutable snapshot of one inbound alert, built once at
// pipeline entry. Target is the pod or node name when the alert names one.
type IncidentRequest struct {
	AlertName   string    `json:"alert_name"`
	Severity    string    `json:"severity"`
	Namespace   string    `json:"namespace"`
	Target      string    `json:"target,omitempty"`
	Description string    `json:"description"`
	Fingerprint string    `json:"fingerprint"`
	ReceivedAt  time.Time `json:"received_at"`
}

// IncidentRequestFromAlert validates and converts an Alertmanager alert.
// An alert without an alertname label is malformed.
func IncidentRequestFromAlert(alert Alert, now time.Time) (IncidentRequest, error) {
	name := alert.Labels["alertname"]
	if name == "" {
		return IncidentRequest{}, ErrMalformedAlert
	}

	severity := alert.Labels["severity"]
	if severity == "" {
		severity = SeverityWarning
	}

	target := alert.Labels["pod"]
	if target == "" {
		target = alert.Labels["node"]
	}

	desc := alert.Annotations["description"]
	if desc == "" {
		desc = alert.Annotations["summary"]
	}

	return IncidentRequest{
		AlertName:   name,
		Severity:    severity,
		Namespace:   alert.Labels["namespace"],
		Target:      target,
		Description: desc,
		Fingerprint: alert.Fingerprint,
		ReceivedAt:  now,
	}, nil
}

// Package template renders notification body templates.
//
// Supported variables:
//
//	{{incident.id}}, {{incident.alert_name}}, {{incident.severity}},
//	{{incident.status}}, {{incident.action}}, {{incident.resolution}},
//	{{incident.verify_outcome}}, {{incident.rationale}},
//	{{incident.created_at}}
//
//	{{alert.alertname}}, {{alert.severity}}, {{alert.namespace}},
//	{{alert.target}}, {{alert.description}}, {{alert.fingerprint}}
package template

import (
	"strings"
	"time"

	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// IncidentData - incident fields available to templates.
type IncidentData struct {
	ID            string
	AlertName     string
	Severity      string
	Status        string
	Action        string
	Resolution    string
	VerifyOutcome string
	Rationale     string
	CreatedAt     time.Time
}

// AlertData - alert fields available to templates.
type AlertData struct {
	AlertName   string
	Severity    string
	Namespace   string
	Target      string
	Description string
	Fingerprint string
}

// IncidentDataFromRecord builds template data from a ledger record.
func IncidentDataFromRecord(rec model.IncidentRecord) IncidentData {
	return IncidentData{
		ID:            rec.ID,
		AlertName:     rec.AlertName,
		Severity:      rec.Severity,
		Status:        rec.Status,
		Action:        rec.Action,
		Resolution:    rec.Resolution,
		VerifyOutcome: rec.VerifyOutcome,
		Rationale:     rec.Rationale,
		CreatedAt:     rec.CreatedAt,
	}
}

// AlertDataFromRequest builds template data from an ingress snapshot.
func AlertDataFromRequest(req model.IncidentRequest) AlertData {
	return AlertData{
		AlertName:   req.AlertName,
		Severity:    req.Severity,
		Namespace:   req.Namespace,
		Target:      req.Target,
		Description: req.Description,
		Fingerprint: req.Fingerprint,
	}
}

// RenderBody replaces template variables with their values.
//
// Either incident or alert may be nil; variables of a nil section render as
// empty strings.
func RenderBody(body string, incident *IncidentData, alert *AlertData) string {
	pairs := make([]string, 0, 30)

	if incident != nil {
		pairs = append(pairs,
			"{{incident.id}}", incident.ID,
			"{{incident.alert_name}}", incident.AlertName,
			"{{incident.severity}}", incident.Severity,
			"{{incident.status}}", incident.Status,
			"{{incident.action}}", incident.Action,
			"{{incident.resolution}}", incident.Resolution,
			"{{incident.verify_outcome}}", incident.VerifyOutcome,
			"{{incident.rationale}}", incident.Rationale,
			"{{incident.created_at}}", incident.CreatedAt.Format(time.RFC3339),
		)
	} else {
		pairs = append(pairs,
			"{{incident.id}}", "",
			"{{incident.alert_name}}", "",
			"{{incident.severity}}", "",
			"{{incident.status}}", "",
			"{{incident.action}}", "",
			"{{incident.resolution}}", "",
			"{{incident.verify_outcome}}", "",
			"{{incident.rationale}}", "",
			"{{incident.created_at}}", "",
		)
	}

	if alert != nil {
		pairs = append(pairs,
			"{{alert.alertname}}", alert.AlertName,
			"{{alert.severity}}", alert.Severity,
			"{{alert.namespace}}", alert.Namespace,
			"{{alert.target}}", alert.Target,
			"{{alert.description}}", alert.Description,
			"{{alert.fingerprint}}", alert.Fingerprint,
		)
	} else {
		pairs = append(pairs,
			"{{alert.alertname}}", "",
			"{{alert.severity}}", "",
			"{{alert.namespace}}", "",
			"{{alert.target}}", "",
			"{{alert.description}}", "",
			"{{alert.fingerprint}}", "",
		)
	}

	return strings.NewReplacer(pairs...).Replace(body)
}

package model

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type PingResponse struct {
	Message string `json:"message"`
}

type RootResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type AuthLogoutResponse struct {
	Status string `json:"status"`
}

type AuthMeResponse struct {
	UserID  int64  `json:"userId"`
	LoginID string `json:"loginId"`
}

// WebhookResponse - summary returned to Alertmanager after a delivery.
// Processed counts alerts that entered the pipeline; Malformed counts alerts
// rejected at ingress; Duplicates counts deliveries suppressed by the
// idempotency window.
type WebhookResponse struct {
	Status     string   `json:"status"`
	Processed  int      `json:"processed"`
	Malformed  int      `json:"malformed"`
	Duplicates int      `json:"duplicates"`
	Incidents  []string `json:"incidents,omitempty"`
}

// IncidentEnvelope - detail response for one ledger record.
type IncidentEnvelope struct {
	Status string          `json:"status"`
	Data   *IncidentRecord `json:"data"`
}

// ApprovalEnvelope - detail response for one pending approval.
type ApprovalEnvelope struct {
	Status string           `json:"status"`
	Data   *PendingApproval `json:"data"`
}

// ApprovalResultResponse - returned by approve/reject. When an approval
// resumed execution, VerifyOutcome carries the post-action health verdict.
type ApprovalResultResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	ApprovalID    string `json:"approval_id"`
	IncidentID    string `json:"incident_id"`
	VerifyOutcome string `json:"verify_outcome,omitempty"`
}

// RuntimeConfigResponse - the operator-tunable knobs exposed over the API.
type RuntimeConfigResponse struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	AutoActionEnabled   bool    `json:"auto_action_enabled"`
}

// RuntimeConfigRequest - partial update of the runtime knobs. Omitted fields
// keep their current value.
type RuntimeConfigRequest struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
	AutoActionEnabled   *bool    `json:"auto_action_enabled"`
}

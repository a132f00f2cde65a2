package model

import "time"

// Approval status values. Pending transitions exactly once to approved,
// rejected or expired.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusExpired  = "expired"
)

// PendingApproval - a gated decision waiting for an operator verdict.
type PendingApproval struct {
	ID         string     `json:"id"`
	IncidentID string     `json:"incident_id"`
	Action     string     `json:"action"`
	Params     Params     `json:"params,omitempty"`
	RiskTier   string     `json:"risk_tier"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
	Status     string     `json:"status"`
	DecidedBy  string     `json:"decided_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	DecidedAt  *time.Time `json:"decided_at,omitempty"`
}

// ApprovalVerdict - operator input accompanying an approve/reject call.
type ApprovalVerdict struct {
	DecidedBy string `json:"decided_by"`
	Reason    string `json:"reason,omitempty"`
}

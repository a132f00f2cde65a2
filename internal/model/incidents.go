package model

import (
	"time"
)

// ============================================================================
// Incident ledger records
// ============================================================================

// Incident status lifecycle: new -> pending_approval -> resolved, or
// new -> resolved directly when the gate auto-approves.
const (
	IncidentStatusNew      = "new"
	IncidentStatusPending  = "pending_approval"
	IncidentStatusResolved = "resolved"
)

// Resolution values recorded when an incident leaves the pipeline.
const (
	ResolutionAutoRemediated = "auto_remediated"
	ResolutionApproved       = "approved"
	ResolutionRejected       = "rejected"
	ResolutionExpired        = "expired"
	ResolutionManualReview   = "manual_review"
	ResolutionDuplicate      = "duplicate"
)

// Verification outcomes.
const (
	VerifyHealthy   = "healthy"
	VerifyUnhealthy = "unhealthy"
	VerifyUnknown   = "unknown"
)

// ActionStep - one entry in an incident's step log. Every dispatch attempt is
// recorded, including unsupported actions and actuation failures.
type ActionStep struct {
	Action     string    `json:"action"`
	Params     Params    `json:"params,omitempty"`
	Success    bool      `json:"success"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// IncidentRecord - append-style ledger row for one incident. Once Status is
// resolved the row refuses further mutation.
type IncidentRecord struct {
	ID          string `json:"id"`
	AlertName   string `json:"alert_name"`
	Severity    string `json:"severity"`
	Namespace   string `json:"namespace"`
	Target      string `json:"target,omitempty"`
	Description string `json:"description,omitempty"`
	Fingerprint string `json:"fingerprint"`

	Status     string `json:"status"`
	Resolution string `json:"resolution,omitempty"`

	// Decision taken for this incident, empty until the engine runs.
	Action     string  `json:"action,omitempty"`
	RiskTier   string  `json:"risk_tier,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`

	// Bounded diagnostic excerpt stored for later similarity search.
	LogExcerpt string `json:"log_excerpt,omitempty"`

	Steps []ActionStep `json:"steps,omitempty"`

	// Verification outcome: healthy, unhealthy, unknown. Empty when no
	// mutating action ran.
	VerifyOutcome string `json:"verify_outcome,omitempty"`
	VerifyDetail  string `json:"verify_detail,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IncidentFilter - optional filters for ledger listing.
type IncidentFilter struct {
	Namespace string
	Status    string
	Since     time.Time
	Limit     int
}

// SimilarIncident - a past incident returned by the context store KNN query.
type SimilarIncident struct {
	IncidentID string  `json:"incident_id"`
	AlertName  string  `json:"alert_name"`
	Action     string  `json:"action"`
	Outcome    string  `json:"outcome"`
	Score      float64 `json:"score"`
}

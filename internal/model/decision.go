package model

// Params - free-form action parameters produced by the advisor and consumed
// by the actuator (e.g. {"deployment": "api", "replicas": 3}).
type Params map[string]any

// String returns the string value for key, or "" when absent or not a string.
func (p Params) String(key string) string {
	v, ok := p[key].(string)
	if !ok {
		return ""
	}
	return v
}

// Int returns the integer value for key. JSON numbers decode as float64, so
// both forms are accepted.
func (p Params) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// Decision - the advisor's verdict for one incident. Action is always a
// member of the action catalog; out-of-catalog proposals are replaced by a
// synthetic manual_review decision before anything downstream sees them.
type Decision struct {
	Action     string  `json:"action"`
	Params     Params  `json:"params,omitempty"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// Context - the evidence bundle handed to the advisor. Every field is
// bounded; assembly failures degrade to empty fields rather than blocking
// the pipeline.
type Context struct {
	Request          IncidentRequest   `json:"request"`
	ResourceState    string            `json:"resource_state,omitempty"`
	RecentEvents     []string          `json:"recent_events,omitempty"`
	LogExcerpt       string            `json:"log_excerpt,omitempty"`
	SimilarIncidents []SimilarIncident `json:"similar_incidents,omitempty"`
}

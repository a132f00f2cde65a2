package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

// One initial call plus advisorRetries re-asks before falling back to
// manual_review.
const advisorRetries = 2

// The prompt carries a larger excerpt than the ledger stores.
const maxPromptLogExcerpt = 3000

// Advisor produces a raw JSON decision for a prompt.
type Advisor interface {
	Advise(ctx context.Context, prompt string) (string, error)
}

// DecisionEngine turns an evidence bundle into exactly one catalog decision.
// It never returns an error: when the advisor is unavailable or keeps
// violating the contract, the result is a manual_review decision with zero
// confidence.
type DecisionEngine struct {
	advisor Advisor
	catalog *catalog.Catalog
}

func NewDecisionEngine(advisor Advisor, cat *catalog.Catalog) *DecisionEngine {
	return &DecisionEngine{advisor: advisor, catalog: cat}
}

func (e *DecisionEngine) Decide(ctx context.Context, dctx model.Context) model.Decision {
	prompt := e.buildPrompt(dctx)

	var lastErr error
	for attempt := 0; attempt <= advisorRetries; attempt++ {
		raw, err := e.advisor.Advise(ctx, prompt)
		if err != nil {
			lastErr = err
			log.Printf("decision: advisor call failed (attempt %d/%d): %v", attempt+1, advisorRetries+1, err)
			continue
		}

		decision, err := e.decode(raw)
		if err != nil {
			lastErr = err
			log.Printf("decision: advisor contract violation (attempt %d/%d): %v", attempt+1, advisorRetries+1, err)
			continue
		}
		return decision
	}

	return model.Decision{
		Action:     catalog.ActionManualReview,
		Confidence: 0.0,
		Rationale:  fmt.Sprintf("advisor unavailable or invalid after %d attempts: %v", advisorRetries+1, lastErr),
	}
}

// decode strictly parses the advisor output. The action must be a catalog
// member; an unparsable confidence degrades to 0.0 rather than failing.
func (e *DecisionEngine) decode(raw string) (model.Decision, error) {
	var payload struct {
		Action     string       `json:"action"`
		Params     model.Params `json:"params"`
		Confidence any          `json:"confidence"`
		Rationale  string       `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return model.Decision{}, fmt.Errorf("not a JSON object: %w", err)
	}
	if payload.Action == "" {
		return model.Decision{}, fmt.Errorf("missing action")
	}
	if !e.catalog.Contains(payload.Action) {
		return model.Decision{}, fmt.Errorf("action %q not in catalog", payload.Action)
	}

	return model.Decision{
		Action:     payload.Action,
		Params:     payload.Params,
		Confidence: parseConfidence(payload.Confidence),
		Rationale:  payload.Rationale,
	}, nil
}

// parseConfidence coerces whatever the model produced into [0,1].
// Unparsable values become 0.0 so they can never pass the gate.
func parseConfidence(v any) float64 {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0.0
		}
		f = parsed
	default:
		return 0.0
	}

	if f < 0 {
		return 0.0
	}
	if f > 1 {
		return 1.0
	}
	return f
}

func (e *DecisionEngine) buildPrompt(dctx model.Context) string {
	var b strings.Builder
	b.WriteString("You are an SRE remediation advisor for a Kubernetes cluster.\n")
	b.WriteString("Choose exactly one action from this list:\n")
	for _, action := range e.catalog.Actions() {
		fmt.Fprintf(&b, "- %s (risk: %s)\n", action, e.catalog.Tier(action))
	}

	req := dctx.Request
	b.WriteString("\nIncident:\n")
	fmt.Fprintf(&b, "alert: %s\nseverity: %s\nnamespace: %s\ntarget: %s\ndescription: %s\n",
		req.AlertName, req.Severity, req.Namespace, req.Target, req.Description)

	if dctx.ResourceState != "" {
		fmt.Fprintf(&b, "\nResource state:\n%s\n", dctx.ResourceState)
	}
	if len(dctx.RecentEvents) > 0 {
		b.WriteString("\nRecent events:\n")
		for _, ev := range dctx.RecentEvents {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}
	if dctx.LogExcerpt != "" {
		fmt.Fprintf(&b, "\nLog excerpt:\n%s\n", TruncateTail(dctx.LogExcerpt, maxPromptLogExcerpt))
	}
	if len(dctx.SimilarIncidents) > 0 {
		b.WriteString("\nSimilar past incidents:\n")
		for _, sim := range dctx.SimilarIncidents {
			fmt.Fprintf(&b, "- %s: action=%s outcome=%s (score %.2f)\n",
				sim.AlertName, sim.Action, sim.Outcome, sim.Score)
		}
	}

	b.WriteString("\nRespond with a single JSON object:\n")
	b.WriteString(`{"action": "...", "params": {"namespace": "...", "deployment"/"pod"/"node": "...", "replicas": N}, "confidence": 0.0-1.0, "rationale": "..."}`)
	b.WriteString("\nPick manual_review if no listed action safely applies.")
	return b.String()
}

// Package catalog defines the closed set of remediation actions the agent may
// take and the risk tier attached to each one. The advisor can only choose
// from this set; anything else becomes a manual_review decision upstream.
package catalog

import (
	"fmt"
	"sort"
)

// Risk tiers. Ordering matters: High always requires operator approval.
const (
	TierSafe   = "safe"
	TierMedium = "medium"
	TierHigh   = "high"
)

// Action names. Read-only diagnostics are Safe, reversible mutations are
// Medium, destructive or hard-to-reverse mutations are High.
const (
	ActionGetDeploymentStatus = "get_deployment_status"
	ActionGetPodEvents        = "get_pod_events"
	ActionCheckNodeHealth     = "check_node_health"

	ActionRestartDeployment = "restart_deployment"
	ActionScaleDeployment   = "scale_deployment"
	ActionDeletePod         = "delete_pod"
	ActionUncordonNode      = "uncordon_node"

	ActionCordonNode         = "cordon_node"
	ActionDrainNode          = "drain_node"
	ActionDeleteDeployment   = "delete_deployment"
	ActionRollbackDeployment = "rollback_deployment"

	// ActionManualReview is the fallback when the advisor cannot produce a
	// usable decision. It never mutates anything.
	ActionManualReview = "manual_review"
)

var tiers = map[string]string{
	ActionGetDeploymentStatus: TierSafe,
	ActionGetPodEvents:        TierSafe,
	ActionCheckNodeHealth:     TierSafe,

	ActionRestartDeployment: TierMedium,
	ActionScaleDeployment:   TierMedium,
	ActionDeletePod:         TierMedium,
	ActionUncordonNode:      TierMedium,

	ActionCordonNode:         TierHigh,
	ActionDrainNode:          TierHigh,
	ActionDeleteDeployment:   TierHigh,
	ActionRollbackDeployment: TierHigh,
	ActionManualReview:       TierHigh,
}

// Catalog maps every known action to its risk tier. Overrides from
// REQUIRE_APPROVAL_FOR are applied at construction.
type Catalog struct {
	tiers map[string]string
}

// New builds the catalog, forcing each action in requireApproval to High.
// Unknown names in the override list are rejected so a typo in config cannot
// silently leave an action un-escalated.
func New(requireApproval []string) (*Catalog, error) {
	c := &Catalog{tiers: make(map[string]string, len(tiers))}
	for action, tier := range tiers {
		c.tiers[action] = tier
	}
	for _, action := range requireApproval {
		if _, ok := c.tiers[action]; !ok {
			return nil, fmt.Errorf("require_approval_for references unknown action %q", action)
		}
		c.tiers[action] = TierHigh
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every action carries a known tier. Called at startup
// so a broken catalog fails fast instead of surfacing mid-incident.
func (c *Catalog) Validate() error {
	for action, tier := range c.tiers {
		switch tier {
		case TierSafe, TierMedium, TierHigh:
		default:
			return fmt.Errorf("action %q has unknown risk tier %q", action, tier)
		}
	}
	return nil
}

// Contains reports whether action is a member of the catalog.
func (c *Catalog) Contains(action string) bool {
	_, ok := c.tiers[action]
	return ok
}

// Tier returns the risk tier for action. Unknown actions classify as High so
// a classifier bug can never downgrade risk.
func (c *Catalog) Tier(action string) string {
	tier, ok := c.tiers[action]
	if !ok {
		return TierHigh
	}
	return tier
}

// Mutating reports whether action changes cluster state. Safe actions and
// manual_review are read-only.
func (c *Catalog) Mutating(action string) bool {
	if action == ActionManualReview {
		return false
	}
	return c.Tier(action) != TierSafe
}

// Actions returns all catalog action names, sorted for stable prompts.
func (c *Catalog) Actions() []string {
	out := make([]string, 0, len(c.tiers))
	for action := range c.tiers {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

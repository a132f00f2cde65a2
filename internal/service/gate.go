package service

import (
	"github.com/Shrinet82/ai-sre-agent/internal/catalog"
)

// RequireApproval decides whether a classified decision may execute without
// an operator. Pure function over its inputs: high risk always gates, low
// confidence gates, and disabling auto-action gates everything.
func RequireApproval(tier string, confidence, threshold float64, autoAction bool) bool {
	if !autoAction {
		return true
	}
	if tier == catalog.TierHigh {
		return true
	}
	return confidence < threshold
}

// Package rules holds the decision tables of each strategy. Every engine is
// an ordered list of predicates over a metrics snapshot; the first rule that
// matches decides, and the last rule always matches.
package rules

import (
	"fmt"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// Decision is the outcome of one rule engine evaluation.
type Decision struct {
	Action     models.Action     `json:"recommendation"`
	Confidence models.Confidence `json:"confidence"`
	Reason     string            `json:"reason"`
}

func decide(action models.Action, confidence models.Confidence, format string, args ...interface{}) Decision {
	return Decision{Action: action, Confidence: confidence, Reason: fmt.Sprintf(format, args...)}
}

// NormalizeRisk maps unknown or empty risk levels to medium.
func NormalizeRisk(r models.RiskLevel) models.RiskLevel {
	if r.Valid() {
		return r
	}
	return models.RiskMedium
}

// ResolveRisk picks the override when set, else the account setting, else medium.
func ResolveRisk(override, account models.RiskLevel) models.RiskLevel {
	if override.Valid() {
		return override
	}
	return NormalizeRisk(account)
}

package rules

import "github.com/eddiefleurent/portfolio_scanner/internal/models"

// CoveredCallParams are the tunable thresholds of the covered call engine.
type CoveredCallParams struct {
	MinPremiumCapture  float64 `json:"min_premium_capture" yaml:"min_premium_capture"`
	NearStrikeRatio    float64 `json:"near_strike_ratio" yaml:"near_strike_ratio"`
	TargetOTMPercent   float64 `json:"target_otm_percent" yaml:"target_otm_percent"`
	MinAnnualizedYield float64 `json:"min_annualized_yield" yaml:"min_annualized_yield"`
	MinDTE             int     `json:"min_dte" yaml:"min_dte"`
	MaxDTE             int     `json:"max_dte" yaml:"max_dte"`
}

// DefaultCoveredCallParams returns the stock thresholds.
func DefaultCoveredCallParams() CoveredCallParams {
	return CoveredCallParams{
		MinPremiumCapture:  80,
		NearStrikeRatio:    0.95,
		TargetOTMPercent:   5,
		MinAnnualizedYield: 8,
		MinDTE:             21,
		MaxDTE:             45,
	}
}

const (
	assignmentImminentDTE       = 7
	assignmentImminentExtrinsic = 0.10
	highAssignmentPct           = 70
	highAssignmentDTE           = 14
	nearStrikeDTE               = 21
	expireWorthlessDTE          = 3
	conservativeAssignmentPct   = 50
)

// CoveredCall decides on a short call covered by stock.
func CoveredCall(m models.MetricsSnapshot, risk models.RiskLevel, p CoveredCallParams) Decision {
	risk = NormalizeRisk(risk)
	assign := m.AssignmentProbability

	switch {
	case m.DTE <= assignmentImminentDTE && m.StockPrice >= m.Strike && m.ExtrinsicValue < assignmentImminentExtrinsic:
		return decide(models.ActionRoll, models.ConfidenceHigh,
			"Assignment imminent: stock $%.2f at or above $%.2f strike with %d DTE and $%.2f extrinsic left; roll up and out",
			m.StockPrice, m.Strike, m.DTE, m.ExtrinsicValue)

	case m.PremiumCapturedPercent >= p.MinPremiumCapture && m.DTE > assignmentImminentDTE:
		return decide(models.ActionBuyToClose, models.ConfidenceHigh,
			"%.1f%% of premium captured with %d DTE left; buy back and free the shares",
			m.PremiumCapturedPercent, m.DTE)

	case assign != nil && *assign >= highAssignmentPct && m.DTE <= highAssignmentDTE:
		return decide(models.ActionRoll, models.ConfidenceMedium,
			"Assignment probability %.0f%% with %d DTE; roll to keep the shares",
			*assign, m.DTE)

	case m.Strike > 0 && m.StockPrice >= m.Strike*p.NearStrikeRatio && m.DTE <= nearStrikeDTE:
		return decide(models.ActionRoll, models.ConfidenceMedium,
			"Stock $%.2f is near the $%.2f strike with %d DTE; consider rolling up",
			m.StockPrice, m.Strike, m.DTE)

	case m.StockPrice < m.Strike && m.DTE <= expireWorthlessDTE:
		return decide(models.ActionHold, models.ConfidenceHigh,
			"Stock $%.2f below $%.2f strike with %d DTE; let it expire worthless",
			m.StockPrice, m.Strike, m.DTE)

	case risk == models.RiskLow && assign != nil && *assign >= conservativeAssignmentPct:
		return decide(models.ActionBuyToClose, models.ConfidenceMedium,
			"Conservative account with %.0f%% assignment probability; close to avoid losing the shares",
			*assign)

	default:
		return decide(models.ActionHold, models.ConfidenceMedium,
			"Monitor: %.1f%% premium captured, %d DTE, stock $%.2f vs $%.2f strike",
			m.PremiumCapturedPercent, m.DTE, m.StockPrice, m.Strike)
	}
}

// CoveredCallOpportunity decides whether to write a call on uncovered shares.
// found reports whether a contract in the DTE window was selected.
func CoveredCallOpportunity(m models.MetricsSnapshot, found bool, p CoveredCallParams) Decision {
	if !found {
		return decide(models.ActionNone, models.ConfidenceLow,
			"No call near %.1f%% OTM with %d-%d DTE", p.TargetOTMPercent, p.MinDTE, p.MaxDTE)
	}
	if m.AnnualizedYieldPercent < p.MinAnnualizedYield {
		return decide(models.ActionNone, models.ConfidenceLow,
			"Best call $%.2f strike yields %.1f%% annualized, below the %.1f%% minimum",
			m.Strike, m.AnnualizedYieldPercent, p.MinAnnualizedYield)
	}
	return decide(models.ActionSellCall, models.ConfidenceMedium,
		"Sell %.0f call(s) at $%.2f strike, %d DTE, for $%.2f each (%.1f%% annualized yield)",
		m.Contracts, m.Strike, m.DTE, m.Mid, m.AnnualizedYieldPercent)
}

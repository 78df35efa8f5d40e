package rules

import (
	"fmt"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// CashSecuredPutParams are the tunable thresholds of the cash-secured put engine.
type CashSecuredPutParams struct {
	MinPremiumCapture  float64 `json:"min_premium_capture" yaml:"min_premium_capture"`
	TargetOTMPercent   float64 `json:"target_otm_percent" yaml:"target_otm_percent"`
	MinAnnualizedYield float64 `json:"min_annualized_yield" yaml:"min_annualized_yield"`
	// MinCashRatio is the multiple of strike×100 a new contract must leave in cash.
	MinCashRatio float64 `json:"min_cash_ratio" yaml:"min_cash_ratio"`
	MaxContracts int     `json:"max_contracts" yaml:"max_contracts"`
	MinDTE       int     `json:"min_dte" yaml:"min_dte"`
	MaxDTE       int     `json:"max_dte" yaml:"max_dte"`
}

// DefaultCashSecuredPutParams returns the stock thresholds.
func DefaultCashSecuredPutParams() CashSecuredPutParams {
	return CashSecuredPutParams{
		MinPremiumCapture:  80,
		TargetOTMPercent:   7.5,
		MinAnnualizedYield: 10,
		MinCashRatio:       1.1,
		MaxContracts:       10,
		MinDTE:             21,
		MaxDTE:             45,
	}
}

// CashSecuredPut decides on a short put secured by cash. It mirrors the
// covered call table with the strike test flipped: a put is threatened when
// the stock falls to the strike.
func CashSecuredPut(m models.MetricsSnapshot, risk models.RiskLevel, p CashSecuredPutParams) Decision {
	risk = NormalizeRisk(risk)
	assign := m.AssignmentProbability

	switch {
	case m.DTE <= assignmentImminentDTE && m.Strike > 0 && m.StockPrice <= m.Strike && m.ExtrinsicValue < assignmentImminentExtrinsic:
		return decide(models.ActionRoll, models.ConfidenceHigh,
			"Assignment imminent: stock $%.2f at or below $%.2f strike with %d DTE and $%.2f extrinsic left; roll down and out or take the shares",
			m.StockPrice, m.Strike, m.DTE, m.ExtrinsicValue)

	case m.PremiumCapturedPercent >= p.MinPremiumCapture && m.DTE > assignmentImminentDTE:
		return decide(models.ActionBuyToClose, models.ConfidenceHigh,
			"%.1f%% of premium captured with %d DTE left; buy back and free $%.2f of cash",
			m.PremiumCapturedPercent, m.DTE, m.RequiredCash)

	case assign != nil && *assign >= highAssignmentPct && m.DTE <= highAssignmentDTE:
		return decide(models.ActionRoll, models.ConfidenceMedium,
			"Assignment probability %.0f%% with %d DTE; roll down to avoid buying at $%.2f",
			*assign, m.DTE, m.Strike)

	case m.StockPrice > m.Strike && m.DTE <= expireWorthlessDTE:
		return decide(models.ActionHold, models.ConfidenceHigh,
			"Stock $%.2f above $%.2f strike with %d DTE; let it expire worthless",
			m.StockPrice, m.Strike, m.DTE)

	case risk == models.RiskLow && assign != nil && *assign >= conservativeAssignmentPct:
		return decide(models.ActionBuyToClose, models.ConfidenceMedium,
			"Conservative account with %.0f%% assignment probability; close rather than commit $%.2f",
			*assign, m.RequiredCash)

	default:
		return decide(models.ActionHold, models.ConfidenceMedium,
			"Monitor: %.1f%% premium captured, %d DTE, stock $%.2f vs $%.2f strike, breakeven $%.2f",
			m.PremiumCapturedPercent, m.DTE, m.StockPrice, m.Strike, m.Breakeven)
	}
}

// CashSecuredPutOpportunity decides whether to write a put with idle cash.
// found reports whether a contract in the DTE window was selected.
func CashSecuredPutOpportunity(m models.MetricsSnapshot, found bool, p CashSecuredPutParams) Decision {
	if !found {
		return decide(models.ActionNone, models.ConfidenceLow,
			"No put near %.1f%% OTM with %d-%d DTE", p.TargetOTMPercent, p.MinDTE, p.MaxDTE)
	}
	if m.Contracts < 1 {
		return decide(models.ActionNone, models.ConfidenceLow,
			"$%.2f idle cash does not secure one $%.2f put at %.2fx collateral",
			m.IdleCash, m.Strike, p.MinCashRatio)
	}
	if m.AnnualizedYieldPercent < p.MinAnnualizedYield {
		return decide(models.ActionNone, models.ConfidenceLow,
			"Best put $%.2f strike yields %.1f%% annualized, below the %.1f%% minimum",
			m.Strike, m.AnnualizedYieldPercent, p.MinAnnualizedYield)
	}
	d := decide(models.ActionSellPut, models.ConfidenceMedium,
		"Sell %.0f put(s) at $%.2f strike, %d DTE, for $%.2f each (%.1f%% annualized yield); secures $%.2f, breakeven $%.2f",
		m.Contracts, m.Strike, m.DTE, m.Mid, m.AnnualizedYieldPercent, m.RequiredCash, m.Breakeven)
	if m.WheelYieldPercent > 0 {
		d.Reason += fmt.Sprintf("; if assigned, a call 5%% above the strike brings the wheel to %.1f%%", m.WheelYieldPercent)
	}
	return d
}

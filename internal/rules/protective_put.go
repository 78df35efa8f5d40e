package rules

import "github.com/eddiefleurent/portfolio_scanner/internal/models"

// ProtectivePutParams are the tunable thresholds of the protective put engine.
type ProtectivePutParams struct {
	StopLossPercent  float64 `json:"stop_loss_percent" yaml:"stop_loss_percent"`
	MinProtection    float64 `json:"min_protection" yaml:"min_protection"`
	TargetOTMPercent float64 `json:"target_otm_percent" yaml:"target_otm_percent"`
	MinGainToProtect float64 `json:"min_gain_to_protect" yaml:"min_gain_to_protect"`
	MinDTE           int     `json:"min_dte" yaml:"min_dte"`
}

// DefaultProtectivePutParams returns the stock thresholds.
func DefaultProtectivePutParams() ProtectivePutParams {
	return ProtectivePutParams{
		StopLossPercent:  15,
		MinProtection:    85,
		TargetOTMPercent: 7.5,
		MinGainToProtect: 20,
		MinDTE:           30,
	}
}

const (
	protectionExpiringDTE = 7
	deepITMRatio          = 0.90
	hedgeGainPct          = 50
	rollUpMinDTE          = 30
	richPutIVRank         = 70
	richPutExtrinsicPct   = 60
	farOTMRatio           = 1.10
)

// ProtectivePut decides on a long put held against stock.
func ProtectivePut(m models.MetricsSnapshot, p ProtectivePutParams) Decision {
	switch {
	case m.DTE <= protectionExpiringDTE && m.StockPrice > m.Strike:
		return decide(models.ActionRoll, models.ConfidenceHigh,
			"Protection expiring in %d DTE with stock $%.2f above $%.2f strike; roll out to stay hedged",
			m.DTE, m.StockPrice, m.Strike)

	case m.StockPrice < m.Strike*deepITMRatio && m.UnrealizedPlPercent > hedgeGainPct:
		return decide(models.ActionSellToClose, models.ConfidenceMedium,
			"Put up %.1f%% with stock $%.2f well below $%.2f strike; lock in hedge gains",
			m.UnrealizedPlPercent, m.StockPrice, m.Strike)

	case m.StockPlPercent <= -p.StopLossPercent && m.StockPrice <= m.Strike:
		return decide(models.ActionHold, models.ConfidenceHigh,
			"Stock down %.1f%% and protection active at $%.2f strike; hold the hedge",
			m.StockPlPercent, m.Strike)

	case m.ProtectionPercent > 0 && m.ProtectionPercent < p.MinProtection && m.DTE > rollUpMinDTE:
		return decide(models.ActionRoll, models.ConfidenceMedium,
			"Put protects only %.1f%% of the $%.2f price; roll the strike up",
			m.ProtectionPercent, m.StockPrice)

	case m.IVRank != nil && *m.IVRank > richPutIVRank && m.ExtrinsicPercent > richPutExtrinsicPct &&
		m.StockPrice > m.Strike*farOTMRatio:
		return decide(models.ActionSellToClose, models.ConfidenceLow,
			"IV rank %.0f makes the put rich (%.1f%% extrinsic) while the stock sits far above the strike; consider selling",
			*m.IVRank, m.ExtrinsicPercent)

	default:
		return decide(models.ActionHold, models.ConfidenceMedium,
			"Monitor: %.1f%% protection, %d DTE, stock P/L %.1f%%",
			m.ProtectionPercent, m.DTE, m.StockPlPercent)
	}
}

// ProtectivePutOpportunity decides whether to hedge an unprotected stock lot.
func ProtectivePutOpportunity(m models.MetricsSnapshot, found bool, risk models.RiskLevel, p ProtectivePutParams) Decision {
	risk = NormalizeRisk(risk)
	if m.StockPlPercent < p.MinGainToProtect {
		return decide(models.ActionNone, models.ConfidenceLow,
			"Stock gain %.1f%% below the %.1f%% protection threshold", m.StockPlPercent, p.MinGainToProtect)
	}
	if risk == models.RiskHigh {
		return decide(models.ActionNone, models.ConfidenceLow,
			"Aggressive account; %.1f%% gain left unhedged", m.StockPlPercent)
	}
	if !found {
		return decide(models.ActionNone, models.ConfidenceLow,
			"No put near %.1f%% OTM with at least %d DTE", p.TargetOTMPercent, p.MinDTE)
	}
	return decide(models.ActionBuyPut, models.ConfidenceMedium,
		"Protect %.1f%% gain: buy %.0f put(s) at $%.2f strike, %d DTE, costing %.2f%% of the position",
		m.StockPlPercent, m.Contracts, m.Strike, m.DTE, m.CostPercent)
}

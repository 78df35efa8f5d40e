package rules

import "github.com/eddiefleurent/portfolio_scanner/internal/models"

const (
	thetaBurnDTE          = 10
	thetaBurnExtrinsicPct = 25
	lowIVRank             = 30
	lowIVLossPct          = -15
	highIVRank            = 70
	highIVMinDTE          = 30
	conservativeDTE       = 14
)

// StraddleStrangle decides on a long call + long put pair.
func StraddleStrangle(m models.MetricsSnapshot, risk models.RiskLevel) Decision {
	risk = NormalizeRisk(risk)
	aboveUpper := m.StockPrice > 0 && m.StockPrice > m.UpperBreakeven
	belowLower := m.StockPrice > 0 && m.StockPrice < m.LowerBreakeven

	switch {
	case m.DTE <= thetaBurnDTE && m.ExtrinsicPercentOfEntry < thetaBurnExtrinsicPct && m.EntryCost > 0:
		return decide(models.ActionSellToClose, models.ConfidenceHigh,
			"Only %d DTE with %.1f%% of entry left as extrinsic value; theta burn accelerates from here, close and keep $%.2f of value",
			m.DTE, m.ExtrinsicPercentOfEntry, m.NetCurrentValue)

	case (aboveUpper || belowLower) && m.UnrealizedPlPercent > 0:
		return decide(models.ActionSellToClose, models.ConfidenceHigh,
			"Stock at $%.2f is outside breakevens $%.2f-$%.2f with %.1f%% profit; take profit",
			m.StockPrice, m.LowerBreakeven, m.UpperBreakeven, m.UnrealizedPlPercent)

	case m.IVRank != nil && *m.IVRank < lowIVRank && m.UnrealizedPlPercent < lowIVLossPct:
		return decide(models.ActionSellToClose, models.ConfidenceMedium,
			"IV rank low at %.0f with %.1f%% loss; a volatility expansion is unlikely to rescue the position",
			*m.IVRank, m.UnrealizedPlPercent)

	case m.IVRank != nil && *m.IVRank > highIVRank && m.DTE > highIVMinDTE:
		return decide(models.ActionHold, models.ConfidenceHigh,
			"High IV rank at %.0f with %d DTE; ideal conditions for a long volatility position",
			*m.IVRank, m.DTE)

	case risk == models.RiskLow && m.DTE < conservativeDTE:
		return decide(models.ActionSellToClose, models.ConfidenceMedium,
			"Conservative account with %d DTE left and %.1f%% P/L; close before gamma risk grows",
			m.DTE, m.UnrealizedPlPercent)

	default:
		return decide(models.ActionHold, models.ConfidenceMedium,
			"Monitor: %.1f%% P/L, %d DTE, needs a %.1f%% move to reach breakeven",
			m.UnrealizedPlPercent, m.DTE, m.RequiredMovePercent)
	}
}

package rules

import "github.com/eddiefleurent/portfolio_scanner/internal/models"

// OptionParams are the tunable thresholds of the generic option engine.
type OptionParams struct {
	ProfitTarget float64 `json:"profit_target" yaml:"profit_target"`
	StopLoss     float64 `json:"stop_loss" yaml:"stop_loss"`
	ExpiringDTE  int     `json:"expiring_dte" yaml:"expiring_dte"`
	RollDTE      int     `json:"roll_dte" yaml:"roll_dte"`
}

// DefaultOptionParams returns the stock thresholds.
func DefaultOptionParams() OptionParams {
	return OptionParams{
		ProfitTarget: 50,
		StopLoss:     50,
		ExpiringDTE:  7,
		RollDTE:      21,
	}
}

const (
	rollExtrinsicPct = 50
	addMinDTE        = 30
)

// Option decides on a single long option leg.
func Option(m models.MetricsSnapshot, optionType models.OptionType, risk models.RiskLevel, p OptionParams) Decision {
	risk = NormalizeRisk(risk)
	with, against := trendAlignment(optionType, m.Trend)

	switch {
	case m.DTE <= p.ExpiringDTE && !m.InTheMoney:
		return decide(models.ActionSellToClose, models.ConfidenceHigh,
			"Out of the money with %d DTE; sell the remaining $%.2f before it expires worthless",
			m.DTE, m.NetCurrentValue)

	case m.UnrealizedPlPercent >= p.ProfitTarget:
		return decide(models.ActionSellToClose, models.ConfidenceHigh,
			"Up %.1f%%, past the %.0f%% profit target; take profit", m.UnrealizedPlPercent, p.ProfitTarget)

	case m.UnrealizedPlPercent <= -p.StopLoss:
		return decide(models.ActionSellToClose, models.ConfidenceMedium,
			"Down %.1f%%, past the %.0f%% stop loss; cut the position", m.UnrealizedPlPercent, p.StopLoss)

	case m.DTE <= p.RollDTE && m.UnrealizedPlPercent > -p.StopLoss && m.ExtrinsicPercent >= rollExtrinsicPct:
		return decide(models.ActionRoll, models.ConfidenceMedium,
			"%d DTE with %.1f%% of the price still extrinsic; roll out before decay accelerates",
			m.DTE, m.ExtrinsicPercent)

	case against && m.UnrealizedPlPercent < 0:
		return decide(models.ActionSellToClose, models.ConfidenceLow,
			"Trend is %s against this %s with %.1f%% loss; consider closing",
			m.Trend, optionType, m.UnrealizedPlPercent)

	case risk == models.RiskHigh && with && m.UnrealizedPlPercent > 0 && m.DTE > addMinDTE:
		return decide(models.ActionAdd, models.ConfidenceLow,
			"Trend is %s with this %s, up %.1f%% and %d DTE; consider adding",
			m.Trend, optionType, m.UnrealizedPlPercent, m.DTE)

	default:
		return decide(models.ActionHold, models.ConfidenceMedium,
			"Monitor: %.1f%% P/L, %d DTE, trend %s", m.UnrealizedPlPercent, m.DTE, trendOrUnknown(m.Trend))
	}
}

// trendAlignment reports whether the trend favors or opposes the leg.
func trendAlignment(optionType models.OptionType, trend string) (with, against bool) {
	switch {
	case optionType == models.OptionTypeCall && trend == "bullish",
		optionType == models.OptionTypePut && trend == "bearish":
		return true, false
	case optionType == models.OptionTypeCall && trend == "bearish",
		optionType == models.OptionTypePut && trend == "bullish":
		return false, true
	default:
		return false, false
	}
}

func trendOrUnknown(trend string) string {
	if trend == "" {
		return "unknown"
	}
	return trend
}

// Package metrics turns paired positions and market quotes into the derived
// values the rule engines decide on. Every function is pure; callers pass the
// clock in.
package metrics

import (
	"math"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
	"github.com/eddiefleurent/portfolio_scanner/internal/util"
)

const msPerDay = 86_400_000

// Mid returns the bid/ask midpoint.
func Mid(bid, ask float64) float64 {
	return (bid + ask) / 2
}

// DaysToExpiration counts calendar days from now until 12:00 UTC on the
// expiration date, rounded up and floored at zero.
func DaysToExpiration(expiration, now time.Time) int {
	e := expiration.UTC()
	noon := time.Date(e.Year(), e.Month(), e.Day(), 12, 0, 0, 0, time.UTC)
	days := math.Ceil(float64(noon.Sub(now).Milliseconds()) / msPerDay)
	if days < 0 {
		return 0
	}
	return int(days)
}

// Extrinsic is the time value per share of a leg: mid less intrinsic, never negative.
func Extrinsic(typ models.OptionType, mid, stockPrice, strike float64) float64 {
	return math.Max(0, mid-marketdata.IntrinsicValue(typ, stockPrice, strike))
}

// StraddleStrangleInput carries one pair with its leg quotes.
type StraddleStrangleInput struct {
	Now        time.Time
	Call       marketdata.OptionMetrics
	Put        marketdata.OptionMetrics
	IVRank     *float64
	Conditions *marketdata.MarketConditions
	Pair       pairing.StraddleStranglePair
}

// StraddleStrangle computes the snapshot of a long call + long put pair.
func StraddleStrangle(in StraddleStrangleInput) models.MetricsSnapshot {
	call, put := in.Pair.Call, in.Pair.Put
	stock := firstPositive(in.Call.UnderlyingPrice, in.Put.UnderlyingPrice, ptrValue(call.UnderlyingPrice), ptrValue(put.UnderlyingPrice))
	contracts := in.Pair.Contracts()

	callMid := Mid(in.Call.Bid, in.Call.Ask)
	putMid := Mid(in.Put.Bid, in.Put.Ask)
	callStrike, putStrike := call.StrikePrice(), put.StrikePrice()

	netCurrentValue := (callMid + putMid) * contracts * models.SharesPerContract
	entryCost := call.PremiumPerShare()*call.ContractCount()*models.SharesPerContract +
		put.PremiumPerShare()*put.ContractCount()*models.SharesPerContract
	unrealizedPl := netCurrentValue - entryCost

	perSharePremium := util.SafeDiv(entryCost, contracts*models.SharesPerContract, 0)
	upper := math.Max(callStrike, putStrike) + perSharePremium
	lower := math.Min(callStrike, putStrike) - perSharePremium

	var requiredMove float64
	if stock > 0 {
		requiredMove = math.Min(math.Abs(upper-stock)/stock, math.Abs(stock-lower)/stock) * 100
	}

	combinedExtrinsic := (Extrinsic(models.OptionTypeCall, callMid, stock, callStrike) +
		Extrinsic(models.OptionTypePut, putMid, stock, putStrike)) * contracts * models.SharesPerContract
	extrinsicPercent := 100.0
	if entryCost > 0 {
		extrinsicPercent = combinedExtrinsic / entryCost * 100
	}

	dte := 0
	if call.Expiration != nil {
		dte = DaysToExpiration(*call.Expiration, in.Now)
	}

	s := models.MetricsSnapshot{
		IVRank:                  in.IVRank,
		IVvsHV:                  ivVsHV(in.Conditions, in.Call.ImpliedVolatility, in.Put.ImpliedVolatility),
		StockPrice:              stock,
		CallStrike:              callStrike,
		PutStrike:               putStrike,
		CallBid:                 in.Call.Bid,
		CallAsk:                 in.Call.Ask,
		PutBid:                  in.Put.Bid,
		PutAsk:                  in.Put.Ask,
		NetCurrentValue:         netCurrentValue,
		EntryCost:               entryCost,
		UnrealizedPl:            unrealizedPl,
		UnrealizedPlPercent:     util.SafeDiv(unrealizedPl, entryCost, 0) * 100,
		UpperBreakeven:          upper,
		LowerBreakeven:          lower,
		RequiredMovePercent:     requiredMove,
		ExtrinsicValue:          combinedExtrinsic,
		ExtrinsicPercentOfEntry: extrinsicPercent,
		Contracts:               contracts,
		DTE:                     dte,
	}
	applyConditions(&s, in.Conditions)
	return s
}

// ivVsHV is the average leg implied volatility minus historical volatility,
// in percentage points.
func ivVsHV(c *marketdata.MarketConditions, ivs ...*float64) *float64 {
	if c == nil || c.HistoricalVolatility == nil {
		return nil
	}
	var sum float64
	var n int
	for _, iv := range ivs {
		if iv != nil && *iv > 0 {
			sum += *iv
			n++
		}
	}
	if n == 0 {
		return nil
	}
	diff := (sum/float64(n) - *c.HistoricalVolatility) * 100
	return &diff
}

func applyConditions(s *models.MetricsSnapshot, c *marketdata.MarketConditions) {
	if c == nil {
		return
	}
	s.Trend = string(c.Trend)
	s.RSI = c.RSI
}

// Rounded returns s with money and percentage fields rounded to cents.
func Rounded(s models.MetricsSnapshot) models.MetricsSnapshot {
	for _, f := range []*float64{
		&s.StockPrice, &s.Strike, &s.CallStrike, &s.PutStrike,
		&s.CallBid, &s.CallAsk, &s.PutBid, &s.PutAsk, &s.Bid, &s.Ask, &s.Mid,
		&s.NetCurrentValue, &s.EntryCost, &s.UnrealizedPl, &s.UnrealizedPlPercent,
		&s.Breakeven, &s.UpperBreakeven, &s.LowerBreakeven, &s.RequiredMovePercent,
		&s.ExtrinsicValue, &s.ExtrinsicPercentOfEntry, &s.ExtrinsicPercent, &s.IntrinsicValue,
		&s.PremiumCapturedPercent, &s.ProtectionPercent, &s.StockPlPercent,
		&s.AnnualizedYieldPercent, &s.CostPercent, &s.RequiredCash, &s.IdleCash,
		&s.WheelYieldPercent,
	} {
		*f = util.Round(*f, 2)
	}
	s.IVRank = util.RoundPtr(s.IVRank, 2)
	s.IVvsHV = util.RoundPtr(s.IVvsHV, 2)
	s.AssignmentProbability = util.RoundPtr(s.AssignmentProbability, 2)
	s.Delta = util.RoundPtr(s.Delta, 4)
	s.RSI = util.RoundPtr(s.RSI, 2)
	return s
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}

func ptrValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

package metrics

import (
	"math"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
	"github.com/eddiefleurent/portfolio_scanner/internal/util"
	"gonum.org/v1/gonum/stat/distuv"
)

const daysPerYear = 365.0

// LegInput carries a single option leg with its quote.
type LegInput struct {
	Now        time.Time
	IVRank     *float64
	Conditions *marketdata.MarketConditions
	Quote      marketdata.OptionMetrics
	Position   models.Position
}

// StockLegInput is an option leg matched against a stock position.
type StockLegInput struct {
	Stock models.Position
	LegInput
}

// legBase fills the fields every single-leg snapshot shares.
func legBase(in LegInput, stockFallback float64) (models.MetricsSnapshot, float64) {
	p := in.Position
	stock := firstPositive(in.Quote.UnderlyingPrice, ptrValue(p.UnderlyingPrice), stockFallback)
	mid := Mid(in.Quote.Bid, in.Quote.Ask)
	if mid <= 0 {
		mid = in.Quote.Price
	}
	strike := p.StrikePrice()
	intrinsic := marketdata.IntrinsicValue(p.OptionType, stock, strike)
	extrinsic := math.Max(0, mid-intrinsic)

	dte := 0
	if p.Expiration != nil {
		dte = DaysToExpiration(*p.Expiration, in.Now)
	}
	contracts := p.ContractCount()

	s := models.MetricsSnapshot{
		IVRank:           in.IVRank,
		IVvsHV:           ivVsHV(in.Conditions, in.Quote.ImpliedVolatility),
		Delta:            in.Quote.Delta,
		StockPrice:       stock,
		Strike:           strike,
		Bid:              in.Quote.Bid,
		Ask:              in.Quote.Ask,
		Mid:              mid,
		NetCurrentValue:  mid * contracts * models.SharesPerContract,
		EntryCost:        p.PremiumPerShare() * contracts * models.SharesPerContract,
		IntrinsicValue:   intrinsic,
		ExtrinsicValue:   extrinsic,
		ExtrinsicPercent: util.SafeDiv(extrinsic, mid, 0) * 100,
		Contracts:        contracts,
		DTE:              dte,
		InTheMoney:       intrinsic > 0,
	}
	applyConditions(&s, in.Conditions)
	return s, mid
}

// CoveredCall computes the snapshot of a call written against stock. The
// premium was received, so profit is premium kept.
func CoveredCall(in StockLegInput) models.MetricsSnapshot {
	s, mid := legBase(in.LegInput, ptrValue(in.Stock.CurrentPrice))
	premium := in.Position.PremiumPerShare()

	s.UnrealizedPl = s.EntryCost - s.NetCurrentValue
	s.UnrealizedPlPercent = util.SafeDiv(s.UnrealizedPl, s.EntryCost, 0) * 100
	if premium > 0 {
		s.PremiumCapturedPercent = (premium - mid) / premium * 100
	}
	s.Breakeven = in.Stock.CostBasis() - premium
	s.StockPlPercent = stockPlPercent(in.Stock, s.StockPrice)
	s.AnnualizedYieldPercent = AnnualizedYield(premium, s.StockPrice, s.DTE)
	s.AssignmentProbability = AssignmentProbability(models.OptionTypeCall, s.StockPrice, s.Strike,
		in.Quote.ImpliedVolatility, in.Quote.Delta, s.DTE)
	return s
}

// ProtectivePut computes the snapshot of a long put held against stock.
func ProtectivePut(in StockLegInput) models.MetricsSnapshot {
	s, _ := legBase(in.LegInput, ptrValue(in.Stock.CurrentPrice))

	s.UnrealizedPl = s.NetCurrentValue - s.EntryCost
	s.UnrealizedPlPercent = util.SafeDiv(s.UnrealizedPl, s.EntryCost, 0) * 100
	s.Breakeven = in.Stock.CostBasis() + in.Position.PremiumPerShare()
	s.ProtectionPercent = util.SafeDiv(s.Strike, s.StockPrice, 0) * 100
	s.StockPlPercent = stockPlPercent(in.Stock, s.StockPrice)
	s.AssignmentProbability = AssignmentProbability(models.OptionTypePut, s.StockPrice, s.Strike,
		in.Quote.ImpliedVolatility, in.Quote.Delta, s.DTE)
	return s
}

// Option computes the snapshot of a standalone long option leg.
func Option(in LegInput) models.MetricsSnapshot {
	s, _ := legBase(in, 0)
	premium := in.Position.PremiumPerShare()

	s.UnrealizedPl = s.NetCurrentValue - s.EntryCost
	s.UnrealizedPlPercent = util.SafeDiv(s.UnrealizedPl, s.EntryCost, 0) * 100
	if in.Position.OptionType == models.OptionTypeCall {
		s.Breakeven = s.Strike + premium
	} else {
		s.Breakeven = s.Strike - premium
	}
	return s
}

// AnnualizedYield is premium/price scaled to a year, in percent; zero when
// price or dte is not positive.
func AnnualizedYield(premium, price float64, dte int) float64 {
	if price <= 0 || dte <= 0 {
		return 0
	}
	return premium / price * daysPerYear / float64(dte) * 100
}

// AssignmentProbability estimates the chance, in percent, that a contract
// finishes in the money. With implied volatility it uses the lognormal
// N(d2) with zero rates; otherwise |delta|; otherwise moneyness.
func AssignmentProbability(typ models.OptionType, stock, strike float64, iv, delta *float64, dte int) *float64 {
	if stock <= 0 || strike <= 0 {
		return nil
	}
	var p float64
	years := float64(dte) / daysPerYear
	switch {
	case iv != nil && *iv > 0 && years > 0:
		sigmaT := *iv * math.Sqrt(years)
		d2 := (math.Log(stock/strike) - 0.5*(*iv)*(*iv)*years) / sigmaT
		if typ == models.OptionTypePut {
			d2 = -d2
		}
		p = distuv.UnitNormal.CDF(d2) * 100
	case delta != nil:
		p = math.Min(1, math.Abs(*delta)) * 100
	default:
		if marketdata.IntrinsicValue(typ, stock, strike) > 0 {
			p = 100
		}
	}
	return &p
}

func stockPlPercent(stock models.Position, price float64) float64 {
	basis := stock.CostBasis()
	if basis <= 0 || price <= 0 {
		return 0
	}
	return (price - basis) / basis * 100
}

// CashLegInput is a put leg matched against a cash balance.
type CashLegInput struct {
	Cash models.Position
	LegInput
}

// CashSecuredPut computes the snapshot of a put written against cash. Like a
// covered call the premium was received, so profit is premium kept.
func CashSecuredPut(in CashLegInput) models.MetricsSnapshot {
	s, mid := legBase(in.LegInput, 0)
	premium := in.Position.PremiumPerShare()

	s.UnrealizedPl = s.EntryCost - s.NetCurrentValue
	s.UnrealizedPlPercent = util.SafeDiv(s.UnrealizedPl, s.EntryCost, 0) * 100
	if premium > 0 {
		s.PremiumCapturedPercent = (premium - mid) / premium * 100
	}
	s.Breakeven = s.Strike - premium
	s.RequiredCash = pairing.Collateral(in.Position)
	s.AnnualizedYieldPercent = AnnualizedYield(premium, s.StockPrice, s.DTE)
	s.AssignmentProbability = AssignmentProbability(models.OptionTypePut, s.StockPrice, s.Strike,
		in.Quote.ImpliedVolatility, in.Quote.Delta, s.DTE)
	return s
}

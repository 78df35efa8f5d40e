package metrics

import (
	"math"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/util"
)

// ContractFilter describes the new leg an opportunity is looking for.
type ContractFilter struct {
	Type models.OptionType
	// TargetOTMPercent is the distance from the stock price, above it for
	// calls and below it for puts.
	TargetOTMPercent float64
	MinDTE           int
	// MaxDTE of zero means no upper bound.
	MaxDTE int
}

// SelectContract picks the out-of-the-money contract nearest the target strike
// within the DTE window; ties go to the nearer expiration. Returns nil when
// nothing qualifies.
func SelectContract(chain *marketdata.OptionChain, price float64, f ContractFilter, now time.Time) *marketdata.OptionContract {
	if chain == nil || price <= 0 {
		return nil
	}
	target := price * (1 + f.TargetOTMPercent/100)
	if f.Type == models.OptionTypePut {
		target = price * (1 - f.TargetOTMPercent/100)
	}

	var best *marketdata.OptionContract
	bestDiff, bestDTE := math.MaxFloat64, math.MaxInt
	for i := range chain.Contracts {
		c := &chain.Contracts[i]
		if c.Type != f.Type || c.Bid <= 0 {
			continue
		}
		if (f.Type == models.OptionTypeCall && c.Strike < price) || (f.Type == models.OptionTypePut && c.Strike > price) {
			continue
		}
		dte := DaysToExpiration(c.Expiration, now)
		if dte < f.MinDTE || (f.MaxDTE > 0 && dte > f.MaxDTE) {
			continue
		}
		diff := math.Abs(c.Strike - target)
		if diff < bestDiff-marketdata.StrikeMatchEpsilon ||
			(math.Abs(diff-bestDiff) <= marketdata.StrikeMatchEpsilon && dte < bestDTE) {
			best, bestDiff, bestDTE = c, diff, dte
		}
	}
	return best
}

// OpportunityInput is an unmatched stock lot and the chain to choose from.
type OpportunityInput struct {
	Now       time.Time
	IVRank    *float64
	Chain     *marketdata.OptionChain
	Stock     models.Position
	Filter    ContractFilter
	Contracts int
}

// Opportunity computes the snapshot of opening a new leg on an unmatched lot.
// The bool is false when no contract in the chain qualifies; the snapshot then
// still carries the stock fields.
func Opportunity(in OpportunityInput) (models.MetricsSnapshot, bool) {
	price := ptrValue(in.Stock.CurrentPrice)
	if in.Chain != nil && in.Chain.UnderlyingPrice > 0 {
		price = in.Chain.UnderlyingPrice
	}
	s := models.MetricsSnapshot{
		IVRank:         in.IVRank,
		StockPrice:     price,
		StockPlPercent: stockPlPercent(in.Stock, price),
		Contracts:      float64(in.Contracts),
	}

	c := SelectContract(in.Chain, price, in.Filter, in.Now)
	if c == nil {
		return s, false
	}

	mid := c.Mid()
	s.Strike = c.Strike
	s.Bid = c.Bid
	s.Ask = c.Ask
	s.Mid = mid
	s.Delta = c.Delta
	s.DTE = DaysToExpiration(c.Expiration, in.Now)
	s.EntryCost = mid * float64(in.Contracts) * models.SharesPerContract
	s.ExtrinsicValue = mid
	s.AssignmentProbability = AssignmentProbability(c.Type, price, c.Strike, c.ImpliedVolatility, c.Delta, s.DTE)
	if c.Type == models.OptionTypeCall {
		s.AnnualizedYieldPercent = AnnualizedYield(mid, price, s.DTE)
		s.Breakeven = in.Stock.CostBasis() - mid
	} else {
		s.CostPercent = util.SafeDiv(mid, price, 0) * 100
		s.ProtectionPercent = util.SafeDiv(c.Strike, price, 0) * 100
		s.Breakeven = in.Stock.CostBasis() + mid
	}
	return s, true
}

// wheelCallOTM is how far above the put strike the follow-up covered call
// is written once the put is assigned.
const wheelCallOTM = 0.05

// CashOpportunityInput is idle cash and the chain to write a put from.
type CashOpportunityInput struct {
	Now    time.Time
	IVRank *float64
	Chain  *marketdata.OptionChain
	Filter ContractFilter
	Idle   float64
	// MinCashRatio scales the collateral each new contract must leave in cash.
	MinCashRatio float64
	// MaxContracts caps the size; zero means no cap.
	MaxContracts int
}

// CashSecuredPutOpportunity computes the snapshot of writing a new put with
// idle cash. Contracts is how many the cash covers at MinCashRatio times the
// collateral. WheelYieldPercent adds the premium of a call 5% above the put
// strike on the same expiration, sold after assignment. The bool is false
// when no put in the chain qualifies.
func CashSecuredPutOpportunity(in CashOpportunityInput) (models.MetricsSnapshot, bool) {
	var price float64
	if in.Chain != nil {
		price = in.Chain.UnderlyingPrice
	}
	s := models.MetricsSnapshot{
		IVRank:     in.IVRank,
		StockPrice: price,
		IdleCash:   in.Idle,
	}

	f := in.Filter
	f.Type = models.OptionTypePut
	c := SelectContract(in.Chain, price, f, in.Now)
	if c == nil {
		return s, false
	}

	ratio := math.Max(1, in.MinCashRatio)
	contracts := int(math.Floor(util.SafeDiv(in.Idle, c.Strike*models.SharesPerContract*ratio, 0)))
	if in.MaxContracts > 0 && contracts > in.MaxContracts {
		contracts = in.MaxContracts
	}

	mid := c.Mid()
	s.Strike = c.Strike
	s.Bid = c.Bid
	s.Ask = c.Ask
	s.Mid = mid
	s.Delta = c.Delta
	s.DTE = DaysToExpiration(c.Expiration, in.Now)
	s.Contracts = float64(contracts)
	s.EntryCost = mid * float64(contracts) * models.SharesPerContract
	s.RequiredCash = c.Strike * models.SharesPerContract * float64(contracts)
	s.ExtrinsicValue = mid
	s.Breakeven = c.Strike - mid
	s.AnnualizedYieldPercent = AnnualizedYield(mid, price, s.DTE)
	s.AssignmentProbability = AssignmentProbability(models.OptionTypePut, price, c.Strike, c.ImpliedVolatility, c.Delta, s.DTE)
	if call := wheelCall(in.Chain, c); call != nil {
		s.WheelYieldPercent = (mid + call.Mid()) / c.Strike * 100
	}
	return s, true
}

// wheelCall finds the call on put's expiration nearest 5% above its strike,
// never below it.
func wheelCall(chain *marketdata.OptionChain, put *marketdata.OptionContract) *marketdata.OptionContract {
	target := put.Strike * (1 + wheelCallOTM)
	var best *marketdata.OptionContract
	bestDiff := math.MaxFloat64
	for i := range chain.Contracts {
		c := &chain.Contracts[i]
		if c.Type != models.OptionTypeCall || c.Bid <= 0 || c.Strike < put.Strike {
			continue
		}
		if !c.Expiration.Equal(put.Expiration) {
			continue
		}
		if diff := math.Abs(c.Strike - target); diff < bestDiff {
			best, bestDiff = c, diff
		}
	}
	return best
}

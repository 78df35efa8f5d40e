package metrics

import (
	"testing"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockPosition(basis, price float64) models.Position {
	return models.Position{
		ID:            "s1",
		Type:          models.PositionStock,
		Ticker:        "TSLA",
		Shares:        models.Float(100),
		PurchasePrice: models.Float(basis),
		CurrentPrice:  models.Float(price),
	}
}

func TestCoveredCall(t *testing.T) {
	s := CoveredCall(StockLegInput{
		Stock: stockPosition(200, 240),
		LegInput: LegInput{
			Now:      now,
			Position: leg("c1", models.OptionTypeCall, 250, 5, 1),
			Quote:    marketdata.OptionMetrics{Bid: 1, Ask: 1.2, UnderlyingPrice: 240},
		},
	})

	assert.InDelta(t, 1.1, s.Mid, 1e-9)
	assert.Equal(t, 500.0, s.EntryCost)
	assert.InDelta(t, 110.0, s.NetCurrentValue, 1e-9)
	assert.InDelta(t, 390.0, s.UnrealizedPl, 1e-9)
	assert.InDelta(t, 78.0, s.UnrealizedPlPercent, 1e-9)
	assert.InDelta(t, 78.0, s.PremiumCapturedPercent, 1e-9)
	assert.Equal(t, 195.0, s.Breakeven)
	assert.Equal(t, 20.0, s.StockPlPercent)
	assert.InDelta(t, 69.13, s.AnnualizedYieldPercent, 0.01)
	assert.Equal(t, 0.0, s.IntrinsicValue)
	assert.Equal(t, 100.0, s.ExtrinsicPercent)
	assert.False(t, s.InTheMoney)
	require.NotNil(t, s.AssignmentProbability)
	assert.Equal(t, 0.0, *s.AssignmentProbability)
}

func TestCoveredCall_FallsBackToStockPrice(t *testing.T) {
	s := CoveredCall(StockLegInput{
		Stock: stockPosition(200, 260),
		LegInput: LegInput{
			Now:      now,
			Position: leg("c1", models.OptionTypeCall, 250, 5, 1),
			Quote:    marketdata.OptionMetrics{Bid: 10, Ask: 12},
		},
	})
	assert.Equal(t, 260.0, s.StockPrice)
	assert.True(t, s.InTheMoney)
	assert.Equal(t, 10.0, s.IntrinsicValue)
	assert.InDelta(t, 1.0, s.ExtrinsicValue, 1e-9)
	require.NotNil(t, s.AssignmentProbability)
	assert.Equal(t, 100.0, *s.AssignmentProbability)
}

func TestProtectivePut(t *testing.T) {
	s := ProtectivePut(StockLegInput{
		Stock: stockPosition(100, 80),
		LegInput: LegInput{
			Now:      now,
			Position: leg("p1", models.OptionTypePut, 90, 2, 1),
			Quote:    marketdata.OptionMetrics{Bid: 10.5, Ask: 11.5, UnderlyingPrice: 80},
		},
	})
	assert.Equal(t, 1100.0, s.NetCurrentValue)
	assert.Equal(t, 200.0, s.EntryCost)
	assert.Equal(t, 450.0, s.UnrealizedPlPercent)
	assert.Equal(t, 112.5, s.ProtectionPercent)
	assert.Equal(t, -20.0, s.StockPlPercent)
	assert.Equal(t, 102.0, s.Breakeven)
	assert.Equal(t, 10.0, s.IntrinsicValue)
	assert.True(t, s.InTheMoney)
}

func TestOption(t *testing.T) {
	rsi := 40.0
	s := Option(LegInput{
		Now:        now,
		Position:   leg("c1", models.OptionTypeCall, 250, 4, 2),
		Quote:      marketdata.OptionMetrics{Bid: 1.9, Ask: 2.1, UnderlyingPrice: 240, Delta: models.Float(0.3)},
		Conditions: &marketdata.MarketConditions{Trend: marketdata.TrendBearish, RSI: &rsi},
	})
	assert.Equal(t, 400.0, s.NetCurrentValue)
	assert.Equal(t, 800.0, s.EntryCost)
	assert.Equal(t, -50.0, s.UnrealizedPlPercent)
	assert.Equal(t, 254.0, s.Breakeven)
	assert.Equal(t, "bearish", s.Trend)
	assert.Equal(t, 40.0, *s.RSI)
	assert.Equal(t, 0.3, *s.Delta)

	put := Option(LegInput{
		Now:      now,
		Position: leg("p1", models.OptionTypePut, 250, 4, 1),
		Quote:    marketdata.OptionMetrics{Bid: 0, Ask: 0, Price: 3, UnderlyingPrice: 260},
	})
	assert.Equal(t, 3.0, put.Mid)
	assert.Equal(t, 246.0, put.Breakeven)
}

func TestAnnualizedYield(t *testing.T) {
	assert.InDelta(t, 36.5, AnnualizedYield(1, 100, 10), 1e-9)
	assert.Equal(t, 0.0, AnnualizedYield(1, 0, 10))
	assert.Equal(t, 0.0, AnnualizedYield(1, 100, 0))
}

func TestAssignmentProbability(t *testing.T) {
	iv := 0.3
	call := AssignmentProbability(models.OptionTypeCall, 100, 100, &iv, nil, 30)
	put := AssignmentProbability(models.OptionTypePut, 100, 100, &iv, nil, 30)
	require.NotNil(t, call)
	require.NotNil(t, put)
	assert.InDelta(t, 48.3, *call, 0.1)
	assert.InDelta(t, 100, *call+*put, 1e-9)

	deep := AssignmentProbability(models.OptionTypeCall, 150, 100, &iv, nil, 30)
	assert.Greater(t, *deep, 99.0)

	delta := -0.35
	byDelta := AssignmentProbability(models.OptionTypePut, 100, 95, nil, &delta, 30)
	assert.InDelta(t, 35, *byDelta, 1e-9)

	assert.Nil(t, AssignmentProbability(models.OptionTypeCall, 0, 100, &iv, nil, 30))
}

// ladderChain lists calls (mid 1.1) and puts (mid 0.9) at five strikes on
// two expirations, 30 and 60 days out.
func ladderChain() *marketdata.OptionChain {
	var contracts []marketdata.OptionContract
	for _, exp := range []time.Time{now.AddDate(0, 0, 30), now.AddDate(0, 0, 60)} {
		for _, k := range []float64{90, 94, 100, 105, 110} {
			contracts = append(contracts,
				marketdata.OptionContract{Expiration: exp, Type: models.OptionTypeCall, Strike: k, Bid: 1, Ask: 1.2},
				marketdata.OptionContract{Expiration: exp, Type: models.OptionTypePut, Strike: k, Bid: 0.8, Ask: 1.0},
			)
		}
	}
	return &marketdata.OptionChain{Symbol: "XYZ", UnderlyingPrice: 100, Contracts: contracts}
}

func TestSelectContractAndOpportunity(t *testing.T) {
	exp30 := now.AddDate(0, 0, 30)
	exp60 := now.AddDate(0, 0, 60)
	chain := ladderChain()

	call := SelectContract(chain, 100, ContractFilter{Type: models.OptionTypeCall, TargetOTMPercent: 5, MinDTE: 21, MaxDTE: 45}, now)
	require.NotNil(t, call)
	assert.Equal(t, 105.0, call.Strike)
	assert.Equal(t, exp30, call.Expiration)

	put := SelectContract(chain, 100, ContractFilter{Type: models.OptionTypePut, TargetOTMPercent: 7.5, MinDTE: 45}, now)
	require.NotNil(t, put)
	assert.Equal(t, 94.0, put.Strike)
	assert.Equal(t, exp60, put.Expiration)

	assert.Nil(t, SelectContract(chain, 100, ContractFilter{Type: models.OptionTypeCall, MinDTE: 90}, now))

	s, ok := Opportunity(OpportunityInput{
		Now:       now,
		Chain:     chain,
		Stock:     stockPosition(80, 100),
		Contracts: 2,
		Filter:    ContractFilter{Type: models.OptionTypeCall, TargetOTMPercent: 5, MinDTE: 21, MaxDTE: 45},
	})
	require.True(t, ok)
	assert.Equal(t, 105.0, s.Strike)
	assert.InDelta(t, 1.1, s.Mid, 1e-9)
	assert.InDelta(t, 220.0, s.EntryCost, 1e-9)
	assert.Equal(t, 25.0, s.StockPlPercent)
	assert.Equal(t, 30, s.DTE)
	assert.InDelta(t, AnnualizedYield(1.1, 100, 30), s.AnnualizedYieldPercent, 0.01)

	p, ok := Opportunity(OpportunityInput{
		Now:       now,
		Chain:     chain,
		Stock:     stockPosition(80, 100),
		Contracts: 1,
		Filter:    ContractFilter{Type: models.OptionTypePut, TargetOTMPercent: 7.5, MinDTE: 30},
	})
	require.True(t, ok)
	assert.Equal(t, 94.0, p.Strike)
	assert.InDelta(t, 0.9, p.CostPercent, 1e-9)
	assert.Equal(t, 94.0, p.ProtectionPercent)

	_, ok = Opportunity(OpportunityInput{Now: now, Stock: stockPosition(80, 100), Contracts: 1,
		Filter: ContractFilter{Type: models.OptionTypeCall}})
	assert.False(t, ok)
}

func TestCashSecuredPut(t *testing.T) {
	s := CashSecuredPut(CashLegInput{
		Cash: models.Position{ID: "cash", Type: models.PositionCash, CurrentPrice: models.Float(20000)},
		LegInput: LegInput{
			Now:      now,
			Position: leg("p1", models.OptionTypePut, 100, 2, 1),
			Quote:    marketdata.OptionMetrics{Bid: 0.4, Ask: 0.6, UnderlyingPrice: 110},
		},
	})

	assert.InDelta(t, 0.5, s.Mid, 1e-9)
	assert.Equal(t, 200.0, s.EntryCost)
	assert.InDelta(t, 50.0, s.NetCurrentValue, 1e-9)
	assert.InDelta(t, 150.0, s.UnrealizedPl, 1e-9)
	assert.InDelta(t, 75.0, s.PremiumCapturedPercent, 1e-9)
	assert.Equal(t, 98.0, s.Breakeven)
	assert.Equal(t, 10000.0, s.RequiredCash)
	assert.False(t, s.InTheMoney)
	require.NotNil(t, s.AssignmentProbability)
	assert.Equal(t, 0.0, *s.AssignmentProbability)
}

func TestCashSecuredPutOpportunity(t *testing.T) {
	filter := ContractFilter{TargetOTMPercent: 7.5, MinDTE: 21, MaxDTE: 45}

	s, ok := CashSecuredPutOpportunity(CashOpportunityInput{
		Now:          now,
		Chain:        ladderChain(),
		Filter:       filter,
		Idle:         25000,
		MinCashRatio: 1.1,
	})
	require.True(t, ok)
	assert.Equal(t, 94.0, s.Strike)
	assert.Equal(t, 30, s.DTE)
	assert.Equal(t, 2.0, s.Contracts, "25000 covers two 94 puts at 1.1x")
	assert.Equal(t, 18800.0, s.RequiredCash)
	assert.InDelta(t, 180.0, s.EntryCost, 1e-9)
	assert.InDelta(t, 93.1, s.Breakeven, 1e-9)
	assert.Equal(t, 25000.0, s.IdleCash)
	assert.InDelta(t, AnnualizedYield(0.9, 100, 30), s.AnnualizedYieldPercent, 1e-9)
	assert.InDelta(t, (0.9+1.1)/94*100, s.WheelYieldPercent, 1e-9, "100 call is nearest 5% above 94")

	capped, ok := CashSecuredPutOpportunity(CashOpportunityInput{
		Now: now, Chain: ladderChain(), Filter: filter, Idle: 25000, MinCashRatio: 1.1, MaxContracts: 1,
	})
	require.True(t, ok)
	assert.Equal(t, 1.0, capped.Contracts)
	assert.Equal(t, 9400.0, capped.RequiredCash)

	short, ok := CashSecuredPutOpportunity(CashOpportunityInput{
		Now: now, Chain: ladderChain(), Filter: filter, Idle: 9400, MinCashRatio: 1.1,
	})
	require.True(t, ok)
	assert.Equal(t, 0.0, short.Contracts, "exact collateral is short of the 1.1x cushion")

	_, ok = CashSecuredPutOpportunity(CashOpportunityInput{Now: now, Filter: filter, Idle: 25000})
	assert.False(t, ok)
}

package pairing

import (
	"fmt"
	"testing"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func option(id, ticker string, typ models.OptionType, strike float64, exp string, contracts float64) models.Position {
	return models.Position{
		ID:         id,
		Type:       models.PositionOption,
		Ticker:     ticker,
		OptionType: typ,
		Strike:     models.Float(strike),
		Expiration: models.Date(exp),
		Contracts:  models.Float(contracts),
		Premium:    models.Float(5),
	}
}

func stock(id, ticker string, shares float64) models.Position {
	return models.Position{
		ID:            id,
		Type:          models.PositionStock,
		Ticker:        ticker,
		Shares:        models.Float(shares),
		PurchasePrice: models.Float(100),
	}
}

func TestIsStraddle(t *testing.T) {
	tests := []struct {
		name                         string
		callStrike, putStrike, stock float64
		want                         bool
	}{
		{"same strike", 250, 250, 255, true},
		{"wide strangle", 260, 240, 250, false},
		{"wide strangle with low stock", 260, 240, 0, false},
		{"within five percent", 105, 100, 100, true},
		{"stock price widens tolerance", 260, 240, 400, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStraddle(tt.callStrike, tt.putStrike, tt.stock))
		})
	}
}

func TestFindStraddleStranglePairs(t *testing.T) {
	account := models.Account{
		ID: "acct-1",
		Positions: []models.Position{
			option("c1", "TSLA260116C00250000", models.OptionTypeCall, 250, "2026-01-16", 2),
			option("p1", "TSLA260116P00250000", models.OptionTypePut, 250, "2026-01-16", 1),
			option("c2", "TSLA260116C00260000", models.OptionTypeCall, 260, "2026-01-16", 1),
			option("p2", "TSLA260220P00240000", models.OptionTypePut, 240, "2026-02-20", 1),
			option("c3", "AAPL260116C00200000", models.OptionTypeCall, 200, "2026-01-16", 1),
			stock("s1", "TSLA", 100),
		},
	}

	pairs := FindStraddleStranglePairs(account)
	require.Len(t, pairs, 1)
	assert.Equal(t, "TSLA", pairs[0].Symbol)
	assert.Equal(t, "acct-1", pairs[0].AccountID)
	assert.Equal(t, []string{"c1", "p1"}, pairs[0].LegIDs())
	assert.Equal(t, 1.0, pairs[0].Contracts())
}

func TestFindStraddleStranglePairs_SkipsInvalidLegs(t *testing.T) {
	put := option("p1", "SPY260116P00400000", models.OptionTypePut, 400, "2026-01-16", 1)
	put.Contracts = models.Float(0)
	account := models.Account{
		ID: "acct-1",
		Positions: []models.Position{
			option("c1", "SPY260116C00400000", models.OptionTypeCall, 400, "2026-01-16", 1),
			put,
		},
	}
	assert.Empty(t, FindStraddleStranglePairs(account))
}

func TestFindStraddleStranglePairs_NoLegReuse(t *testing.T) {
	// Many calls competing for fewer puts across several symbols.
	var positions []models.Position
	for i := 0; i < 6; i++ {
		positions = append(positions,
			option(fmt.Sprintf("c%d", i), "NVDA260320C00500000", models.OptionTypeCall, 500, "2026-03-20", 1))
	}
	for i := 0; i < 4; i++ {
		positions = append(positions,
			option(fmt.Sprintf("p%d", i), "NVDA260320P00480000", models.OptionTypePut, 480, "2026-03-20", 1))
	}
	positions = append(positions,
		option("c-x", "AMD260320C00150000", models.OptionTypeCall, 150, "2026-03-20", 1),
		option("p-x", "AMD260320P00150000", models.OptionTypePut, 150, "2026-03-20", 1),
	)

	pairs := FindStraddleStranglePairs(models.Account{ID: "a", Positions: positions})
	require.Len(t, pairs, 5)

	seen := make(map[string]bool)
	for _, p := range pairs {
		for _, id := range p.LegIDs() {
			assert.Falsef(t, seen[id], "leg %s used in more than one pair", id)
			seen[id] = true
		}
	}
}

func TestFindStraddleStranglePairs_Deterministic(t *testing.T) {
	account := models.Account{
		ID: "a",
		Positions: []models.Position{
			option("c1", "QQQ260116C00500000", models.OptionTypeCall, 500, "2026-01-16", 1),
			option("p1", "QQQ260116P00500000", models.OptionTypePut, 500, "2026-01-16", 1),
			option("p2", "QQQ260116P00490000", models.OptionTypePut, 490, "2026-01-16", 1),
		},
	}
	first := FindStraddleStranglePairs(account)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FindStraddleStranglePairs(account))
	}
	assert.Equal(t, "p1", first[0].Put.ID)
}

func TestFindCoveredCalls(t *testing.T) {
	account := models.Account{
		ID: "acct-2",
		Positions: []models.Position{
			stock("s1", "TSLA", 250),
			option("c1", "TSLA260116C00475000", models.OptionTypeCall, 475, "2026-01-16", 2),
			option("c2", "TSLA260220C00500000", models.OptionTypeCall, 500, "2026-02-20", 1),
			stock("s2", "AAPL", 300),
			option("p1", "AAPL260116P00180000", models.OptionTypePut, 180, "2026-01-16", 1),
			stock("s3", "F", 50),
		},
	}

	result := FindCoveredCalls(account)
	require.Len(t, result.Pairs, 1, "second TSLA call exceeds remaining shares")
	assert.Equal(t, "c1", result.Pairs[0].Option.ID)
	assert.Equal(t, "s1", result.Pairs[0].Stock.ID)

	require.Len(t, result.Opportunities, 1)
	assert.Equal(t, "AAPL", result.Opportunities[0].Symbol)
	assert.Equal(t, 3, result.Opportunities[0].Contracts)

	assert.ElementsMatch(t, []string{"TSLA", "AAPL"}, result.Symbols())
}

func TestFindProtectivePuts(t *testing.T) {
	account := models.Account{
		ID: "acct-3",
		Positions: []models.Position{
			stock("s1", "AAPL", 200),
			option("p1", "AAPL260116P00180000", models.OptionTypePut, 180, "2026-01-16", 1),
			option("p2", "AAPL260116P00170000", models.OptionTypePut, 170, "2026-01-16", 1),
			option("p3", "AAPL260116P00160000", models.OptionTypePut, 160, "2026-01-16", 1),
			stock("s2", "MSFT", 100),
		},
	}

	result := FindProtectivePuts(account)
	require.Len(t, result.Pairs, 2)
	assert.Equal(t, []string{"p1", "s1"}, result.Pairs[0].LegIDs())
	assert.Equal(t, []string{"p2", "s1"}, result.Pairs[1].LegIDs())

	require.Len(t, result.Opportunities, 1)
	assert.Equal(t, "MSFT", result.Opportunities[0].Symbol)
	assert.Equal(t, 1, result.Opportunities[0].Contracts)
}

func cash(id string, balance float64) models.Position {
	return models.Position{ID: id, Type: models.PositionCash, CurrentPrice: models.Float(balance)}
}

func TestStockLegs_IgnoreStraddleLegs(t *testing.T) {
	account := models.Account{
		ID: "acct-4",
		Positions: []models.Position{
			stock("s1", "XYZ", 100),
			option("c1", "XYZ260220C00100000", models.OptionTypeCall, 100, "2026-02-20", 1),
			option("p1", "XYZ260220P00100000", models.OptionTypePut, 100, "2026-02-20", 1),
		},
	}

	pairs := FindStraddleStranglePairs(account)
	require.Len(t, pairs, 1)
	assert.Equal(t, []string{"c1", "p1"}, pairs[0].LegIDs())

	calls := FindCoveredCalls(account)
	assert.Empty(t, calls.Pairs)
	require.Len(t, calls.Opportunities, 1)
	assert.Equal(t, 1, calls.Opportunities[0].Contracts)

	puts := FindProtectivePuts(account)
	assert.Empty(t, puts.Pairs)
	require.Len(t, puts.Opportunities, 1)

	var ids []string
	for _, p := range LongLegs(account) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c1", "p1"}, ids)
}

func TestLongLegs(t *testing.T) {
	account := models.Account{
		ID: "acct-1",
		Positions: []models.Position{
			stock("aapl", "AAPL", 100),
			option("written", "AAPL260220C00170000", models.OptionTypeCall, 170, "2026-02-20", 1),
			option("long-call", "MSFT260220C00400000", models.OptionTypeCall, 400, "2026-02-20", 1),
			option("hedge", "AAPL260320P00140000", models.OptionTypePut, 140, "2026-03-20", 1),
			option("secured", "KO260220P00060000", models.OptionTypePut, 60, "2026-02-20", 1),
			option("unsecured", "NVDA260220P00900000", models.OptionTypePut, 900, "2026-02-20", 1),
			cash("cash", 10000),
			{ID: "broken", Type: models.PositionOption, Ticker: "TSLA", OptionType: models.OptionTypeCall},
		},
	}

	var ids []string
	for _, p := range LongLegs(account) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"long-call", "hedge", "unsecured"}, ids)
}

func TestFindCashSecuredPuts(t *testing.T) {
	account := models.Account{
		ID: "acct-5",
		Positions: []models.Position{
			stock("s1", "AAPL", 100),
			option("hedge", "AAPL260220P00150000", models.OptionTypePut, 150, "2026-02-20", 1),
			option("ko", "KO260220P00060000", models.OptionTypePut, 60, "2026-02-20", 2),
			option("big", "NVDA260220P00900000", models.OptionTypePut, 900, "2026-02-20", 1),
			option("c1", "F260220C00012000", models.OptionTypeCall, 12, "2026-02-20", 1),
			option("f1", "F260220P00012000", models.OptionTypePut, 12, "2026-02-20", 1),
			cash("cash-a", 15000),
			cash("cash-b", 1000),
		},
	}

	result := FindCashSecuredPuts(account, nil)
	require.Len(t, result.Pairs, 1, "hedge protects stock, big exceeds every balance, f1 is a strangle leg")
	assert.Equal(t, []string{"ko", "cash-a"}, result.Pairs[0].LegIDs())
	assert.Equal(t, "KO", result.Pairs[0].Symbol)

	// 15000 - 2×60×100 left on cash-a, all of cash-b; candidates are the held stock
	require.Len(t, result.Opportunities, 2)
	assert.Equal(t, "cash-a", result.Opportunities[0].Cash.ID)
	assert.Equal(t, 3000.0, result.Opportunities[0].Idle)
	assert.Equal(t, "AAPL", result.Opportunities[0].Symbol)
	assert.Equal(t, "cash-b", result.Opportunities[1].Cash.ID)
	assert.Equal(t, 1000.0, result.Opportunities[1].Idle)

	assert.Equal(t, []string{"KO", "AAPL"}, result.Symbols())
}

func TestFindCashSecuredPuts_Watchlist(t *testing.T) {
	account := models.Account{
		ID:        "acct-6",
		Positions: []models.Position{stock("s1", "AAPL", 100), cash("cash", 20000)},
	}

	result := FindCashSecuredPuts(account, []string{"MSFT", "KO", "MSFT"})
	assert.Empty(t, result.Pairs)
	require.Len(t, result.Opportunities, 2)
	assert.Equal(t, "MSFT", result.Opportunities[0].Symbol)
	assert.Equal(t, "KO", result.Opportunities[1].Symbol)
	assert.Equal(t, 20000.0, result.Opportunities[1].Idle)

	assert.Empty(t, FindCashSecuredPuts(models.Account{ID: "no-cash", Positions: []models.Position{stock("s1", "AAPL", 100)}}, nil).Opportunities)
}

func TestCollateral(t *testing.T) {
	assert.Equal(t, 12000.0, Collateral(option("p", "KO260220P00060000", models.OptionTypePut, 60, "2026-02-20", 2)))
}

package pairing

import (
	"math"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// StockLegPair is a single option leg matched against the stock position that
// covers it: a written call for covered calls, a long put for protective puts.
type StockLegPair struct {
	AccountID string
	Symbol    string
	Option    models.Position
	Stock     models.Position
}

// LegIDs returns the option ID followed by the stock ID.
func (p StockLegPair) LegIDs() []string {
	return []string{p.Option.ID, p.Stock.ID}
}

// Opportunity is a stock position with enough unmatched shares to support a
// new option leg.
type Opportunity struct {
	AccountID string
	Symbol    string
	Stock     models.Position
	// Contracts is how many 100-share lots are still unmatched.
	Contracts int
}

// StockLegResult holds both outputs of a stock-leg pairing pass.
type StockLegResult struct {
	Pairs         []StockLegPair
	Opportunities []Opportunity
}

// Symbols returns the distinct underlyings referenced by pairs and opportunities.
func (r StockLegResult) Symbols() []string {
	var symbols []string
	for _, p := range r.Pairs {
		symbols = append(symbols, p.Symbol)
	}
	for _, o := range r.Opportunities {
		symbols = append(symbols, o.Symbol)
	}
	return distinct(symbols)
}

// FindCoveredCalls matches each call leg with a stock position on the same
// underlying that still has contracts×100 uncovered shares. Calls already in
// a straddle/strangle pair are not candidates.
func FindCoveredCalls(account models.Account) StockLegResult {
	legs := OptionLegs(account.Positions)
	_, straddled := matchStraddles(account.ID, legs)
	result, _ := matchStockLegs(account, legs, models.OptionTypeCall, straddled)
	return result
}

// FindProtectivePuts matches each put leg with a stock position on the same
// underlying that still has contracts×100 unprotected shares. Puts already in
// a straddle/strangle pair are not candidates.
func FindProtectivePuts(account models.Account) StockLegResult {
	legs := OptionLegs(account.Positions)
	_, straddled := matchStraddles(account.ID, legs)
	result, _ := matchStockLegs(account, legs, models.OptionTypePut, straddled)
	return result
}

// matchStockLegs pairs legs of optionType, except those in skip, against the
// account's stock. It returns the indices into legs that it paired.
func matchStockLegs(account models.Account, legs []models.Position, optionType models.OptionType, skip map[int]bool) (StockLegResult, map[int]bool) {
	var stocks []models.Position
	for _, p := range account.Positions {
		if p.Type == models.PositionStock && p.ShareCount() > 0 && p.Ticker != "" {
			stocks = append(stocks, p)
		}
	}

	// remaining shares per stock index; the consumed-set for this pass
	remaining := make([]float64, len(stocks))
	for i, s := range stocks {
		remaining[i] = s.ShareCount()
	}

	var result StockLegResult
	paired := make(map[int]bool)
	for li, leg := range legs {
		if leg.OptionType != optionType || skip[li] {
			continue
		}
		symbol := leg.Underlying()
		need := leg.ContractCount() * models.SharesPerContract

		for i := range stocks {
			if stocks[i].Underlying() != symbol || remaining[i] < need {
				continue
			}
			remaining[i] -= need
			paired[li] = true
			result.Pairs = append(result.Pairs, StockLegPair{
				AccountID: account.ID,
				Symbol:    symbol,
				Option:    leg,
				Stock:     stocks[i],
			})
			break
		}
	}

	for i, s := range stocks {
		lots := int(math.Floor(remaining[i] / models.SharesPerContract))
		if lots < 1 {
			continue
		}
		result.Opportunities = append(result.Opportunities, Opportunity{
			AccountID: account.ID,
			Symbol:    s.Underlying(),
			Stock:     s,
			Contracts: lots,
		})
	}

	return result, paired
}

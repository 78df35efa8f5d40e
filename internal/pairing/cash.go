package pairing

import "github.com/eddiefleurent/portfolio_scanner/internal/models"

// CashLegPair is a put written against a cash balance large enough to buy
// the shares on assignment.
type CashLegPair struct {
	AccountID string
	Symbol    string
	Option    models.Position
	Cash      models.Position
}

// LegIDs returns the option ID followed by the cash ID.
func (p CashLegPair) LegIDs() []string {
	return []string{p.Option.ID, p.Cash.ID}
}

// CashOpportunity is a cash balance with collateral left after every written
// put is secured, offered against one candidate underlying.
type CashOpportunity struct {
	AccountID string
	Symbol    string
	Cash      models.Position
	// Idle is the balance not pledged to a written put.
	Idle float64
}

// CashLegResult holds both outputs of a cash pairing pass.
type CashLegResult struct {
	Pairs         []CashLegPair
	Opportunities []CashOpportunity
}

// Symbols returns the distinct underlyings referenced by pairs and opportunities.
func (r CashLegResult) Symbols() []string {
	var symbols []string
	for _, p := range r.Pairs {
		symbols = append(symbols, p.Symbol)
	}
	for _, o := range r.Opportunities {
		symbols = append(symbols, o.Symbol)
	}
	return distinct(symbols)
}

// Collateral is the cash needed to take assignment of a put: strike×100×contracts.
func Collateral(put models.Position) float64 {
	return put.StrikePrice() * models.SharesPerContract * put.ContractCount()
}

// FindCashSecuredPuts matches each put that is neither in a straddle/strangle
// nor protecting stock with the first cash position that still has its full
// collateral unpledged. Puts no balance can secure stay long. Every cash
// position with money left becomes one opportunity per candidate symbol:
// the watchlist, or the account's stock tickers when the watchlist is empty.
func FindCashSecuredPuts(account models.Account, watchlist []string) CashLegResult {
	legs := OptionLegs(account.Positions)
	_, straddled := matchStraddles(account.ID, legs)
	_, hedged := matchStockLegs(account, legs, models.OptionTypePut, straddled)
	result, _ := matchCashLegs(account, legs, union(straddled, hedged))

	candidates := distinct(watchlist)
	if len(candidates) == 0 {
		var held []string
		for _, p := range account.Positions {
			if p.Type == models.PositionStock && p.ShareCount() > 0 {
				held = append(held, p.Underlying())
			}
		}
		candidates = distinct(held)
	}

	idle := result.Opportunities
	result.Opportunities = nil
	for _, o := range idle {
		for _, symbol := range candidates {
			o.Symbol = symbol
			result.Opportunities = append(result.Opportunities, o)
		}
	}
	return result
}

// matchCashLegs pairs puts, except those in skip, against the account's cash.
// Opportunities come back without a symbol, one per balance with money left.
func matchCashLegs(account models.Account, legs []models.Position, skip map[int]bool) (CashLegResult, map[int]bool) {
	var balances []models.Position
	for _, p := range account.Positions {
		if p.CashBalance() > 0 {
			balances = append(balances, p)
		}
	}

	remaining := make([]float64, len(balances))
	for i, c := range balances {
		remaining[i] = c.CashBalance()
	}

	var result CashLegResult
	paired := make(map[int]bool)
	for li, leg := range legs {
		if leg.OptionType != models.OptionTypePut || skip[li] {
			continue
		}
		need := Collateral(leg)
		for i := range balances {
			if remaining[i] < need {
				continue
			}
			remaining[i] -= need
			paired[li] = true
			result.Pairs = append(result.Pairs, CashLegPair{
				AccountID: account.ID,
				Symbol:    leg.Underlying(),
				Option:    leg,
				Cash:      balances[i],
			})
			break
		}
	}

	for i, c := range balances {
		if remaining[i] <= 0 {
			continue
		}
		result.Opportunities = append(result.Opportunities, CashOpportunity{
			AccountID: account.ID,
			Cash:      c,
			Idle:      remaining[i],
		})
	}

	return result, paired
}

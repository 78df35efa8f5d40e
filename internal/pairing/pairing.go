// Package pairing groups an account's raw positions into the strategy
// instances the analyzers evaluate. Every function here works on a single
// account; the consumed-leg sets are local to one call, so accounts may be
// paired concurrently without locking.
package pairing

import (
	"math"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// straddleTolerance is the strike gap, as a fraction of max(stock, call
// strike), under which a call/put pair is classified as a straddle.
const straddleTolerance = 0.05

// StraddleStranglePair is a long call and long put on the same underlying and
// expiration within one account.
type StraddleStranglePair struct {
	AccountID string
	Symbol    string
	Call      models.Position
	Put       models.Position
}

// LegIDs returns the position IDs of both legs, call first.
func (p StraddleStranglePair) LegIDs() []string {
	return []string{p.Call.ID, p.Put.ID}
}

// Contracts is the number of matched contracts (the smaller leg).
func (p StraddleStranglePair) Contracts() float64 {
	return math.Min(p.Call.ContractCount(), p.Put.ContractCount())
}

// IsStraddle classifies a pair: strikes within 5% of max(stockPrice, callStrike).
func IsStraddle(callStrike, putStrike, stockPrice float64) bool {
	return math.Abs(callStrike-putStrike) <= math.Max(stockPrice, callStrike)*straddleTolerance
}

// OptionLegs filters positions down to valid call/put legs, preserving order.
func OptionLegs(positions []models.Position) []models.Position {
	legs := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		if p.IsOptionLeg() {
			legs = append(legs, p)
		}
	}
	return legs
}

// FindStraddleStranglePairs matches each call with the first unused put on the
// same derived underlying and identical expiration. Calls without a partner
// are skipped. A put is never used by more than one pair.
func FindStraddleStranglePairs(account models.Account) []StraddleStranglePair {
	pairs, _ := matchStraddles(account.ID, OptionLegs(account.Positions))
	return pairs
}

// matchStraddles also returns the indices into legs of every leg it paired.
func matchStraddles(accountID string, legs []models.Position) ([]StraddleStranglePair, map[int]bool) {
	used := make(map[int]bool)
	var pairs []StraddleStranglePair

	for i := range legs {
		call := legs[i]
		if call.OptionType != models.OptionTypeCall {
			continue
		}
		symbol := call.Underlying()

		for j := range legs {
			put := legs[j]
			if put.OptionType != models.OptionTypePut || used[j] {
				continue
			}
			if put.Underlying() != symbol || !put.ExpiresOn(*call.Expiration) {
				continue
			}
			used[i], used[j] = true, true
			pairs = append(pairs, StraddleStranglePair{
				AccountID: accountID,
				Symbol:    symbol,
				Call:      call,
				Put:       put,
			})
			break
		}
	}

	return pairs, used
}

// LongLegs returns the legs held on their own: every valid leg except calls
// written against stock and puts written against cash. Straddle/strangle
// legs and protective puts stay in.
func LongLegs(account models.Account) []models.Position {
	legs := OptionLegs(account.Positions)
	_, straddled := matchStraddles(account.ID, legs)
	_, written := matchStockLegs(account, legs, models.OptionTypeCall, straddled)
	_, hedged := matchStockLegs(account, legs, models.OptionTypePut, straddled)
	_, secured := matchCashLegs(account, legs, union(straddled, hedged))

	var out []models.Position
	for i, leg := range legs {
		if !written[i] && !secured[i] {
			out = append(out, leg)
		}
	}
	return out
}

func union(sets ...map[int]bool) map[int]bool {
	out := make(map[int]bool)
	for _, set := range sets {
		for k, v := range set {
			if v {
				out[k] = true
			}
		}
	}
	return out
}

func distinct(symbols []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range symbols {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

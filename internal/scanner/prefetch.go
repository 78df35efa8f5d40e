package scanner

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
)

// prefetchPlan is the distinct market data one scan will read.
type prefetchPlan struct {
	chainSymbols []string
	contracts    []marketdata.ContractKey
	underlyings  []string
}

// planPrefetch collects chain symbols from the stock-leg strategies that are
// enabled, and contract keys and underlyings from every option leg.
func planPrefetch(accounts []models.Account, settings config.Settings) prefetchPlan {
	var plan prefetchPlan
	chainSeen := make(map[string]bool)
	keySeen := make(map[string]bool)
	underlyingSeen := make(map[string]bool)

	addUnderlying := func(symbol string) {
		if symbol != "" && !underlyingSeen[symbol] {
			underlyingSeen[symbol] = true
			plan.underlyings = append(plan.underlyings, symbol)
		}
	}
	addChain := func(symbols []string) {
		for _, s := range symbols {
			if !chainSeen[s] {
				chainSeen[s] = true
				plan.chainSymbols = append(plan.chainSymbols, s)
			}
			addUnderlying(s)
		}
	}

	for _, acct := range accounts {
		if settings.Enabled(models.StrategyCoveredCall) {
			addChain(pairing.FindCoveredCalls(acct).Symbols())
		}
		if settings.Enabled(models.StrategyProtectivePut) {
			addChain(pairing.FindProtectivePuts(acct).Symbols())
		}
		if settings.Enabled(models.StrategyCashSecuredPut) {
			addChain(pairing.FindCashSecuredPuts(acct, settings.CashSecuredPut.Watchlist()).Symbols())
		}
		for _, leg := range pairing.OptionLegs(acct.Positions) {
			key := marketdata.KeyFor(leg)
			if !keySeen[key.String()] {
				keySeen[key.String()] = true
				plan.contracts = append(plan.contracts, key)
			}
			addUnderlying(key.Symbol)
		}
	}
	return plan
}

// prefetch loads everything in plan into a snapshot with bounded fan-out.
// Failures leave the entry out; analyzers then fetch or skip on their own.
func (s *Scanner) prefetch(ctx context.Context, plan prefetchPlan) *marketdata.Snapshot {
	snap := marketdata.NewSnapshot()
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.limit)

	for _, symbol := range plan.chainSymbols {
		symbol := symbol
		g.Go(func() error {
			chain, err := s.chain(ctx, symbol)
			if err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Warn("Option chain unavailable, omitting symbol")
				return nil
			}
			mu.Lock()
			snap.Chains[symbol] = chain
			mu.Unlock()
			return nil
		})
	}

	for _, key := range plan.contracts {
		key := key
		g.Go(func() error {
			m, err := s.gateway.GetOptionMetrics(ctx, key)
			if err != nil {
				s.logger.WithError(err).WithField("contract", key.String()).Debug("Option metrics preload failed")
				return nil
			}
			mu.Lock()
			snap.Metrics[key.String()] = m
			mu.Unlock()
			return nil
		})
	}

	for _, symbol := range plan.underlyings {
		symbol := symbol
		g.Go(func() error {
			c, err := s.gateway.GetOptionMarketConditions(ctx, symbol)
			if err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Debug("Market conditions preload failed")
				return nil
			}
			mu.Lock()
			snap.Conditions[symbol] = c
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			rank, err := s.gateway.GetIVRankOrPercentile(ctx, symbol)
			if err != nil {
				s.logger.WithError(err).WithField("symbol", symbol).Debug("IV rank preload failed")
				return nil
			}
			mu.Lock()
			snap.IVRanks[symbol] = rank
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return snap
}

// chain reads through the cross-scan chain cache.
func (s *Scanner) chain(ctx context.Context, symbol string) (*marketdata.OptionChain, error) {
	if c, ok := s.cache.Get(symbol); ok {
		return c, nil
	}
	c, err := s.gateway.GetOptionChainDetailed(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, marketdata.ErrNoData
	}
	s.cache.Add(symbol, c)
	return c, nil
}

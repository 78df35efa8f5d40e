package strategy

import (
	"context"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/metrics"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
	"github.com/eddiefleurent/portfolio_scanner/internal/rules"
)

// ProtectivePutAnalyzer evaluates puts held against stock and unhedged lots.
type ProtectivePutAnalyzer struct {
	base
}

var _ Analyzer = (*ProtectivePutAnalyzer)(nil)

// NewProtectivePutAnalyzer creates the protective put analyzer
func NewProtectivePutAnalyzer(deps Deps) *ProtectivePutAnalyzer {
	return &ProtectivePutAnalyzer{base: newBase(models.StrategyProtectivePut, deps)}
}

// Analyze recommends an action for every protective put and, unless disabled,
// a BUY_PUT or NONE for every unhedged 100-share lot.
func (a *ProtectivePutAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	settings := req.Settings.ProtectivePut
	return a.runStockLegs(ctx, req, stockLegRun{
		settings:          settings,
		find:              pairing.FindProtectivePuts,
		skipOpportunities: settings.SkipOpportunities,
		pair: func(ctx context.Context, snap *marketdata.Snapshot, p pairing.StockLegPair, _ models.RiskLevel) (models.Recommendation, error) {
			return a.analyzePair(ctx, snap, p, settings)
		},
		opportunity: func(ctx context.Context, snap *marketdata.Snapshot, o pairing.Opportunity, risk models.RiskLevel) (models.Recommendation, error) {
			return a.analyzeOpportunity(ctx, snap, o, risk, settings)
		},
	})
}

func (a *ProtectivePutAnalyzer) analyzePair(
	ctx context.Context,
	snap *marketdata.Snapshot,
	p pairing.StockLegPair,
	settings config.ProtectivePutSettings,
) (models.Recommendation, error) {
	quote, err := a.legMetrics(ctx, snap, p.Option)
	if err != nil {
		return models.Recommendation{}, err
	}
	m := metrics.ProtectivePut(metrics.StockLegInput{
		Stock: p.Stock,
		LegInput: metrics.LegInput{
			Now:        a.now(),
			IVRank:     a.ivRank(ctx, snap, p.Symbol),
			Conditions: a.conditions(ctx, snap, p.Symbol),
			Quote:      *quote,
			Position:   p.Option,
		},
	})
	d := rules.ProtectivePut(m, settings.ProtectivePutParams)
	return a.recommend(p.AccountID, p.Symbol, p.LegIDs(), m, d), nil
}

func (a *ProtectivePutAnalyzer) analyzeOpportunity(
	ctx context.Context,
	snap *marketdata.Snapshot,
	o pairing.Opportunity,
	risk models.RiskLevel,
	settings config.ProtectivePutSettings,
) (models.Recommendation, error) {
	chain, err := a.chain(ctx, snap, o.Symbol)
	if err != nil {
		return models.Recommendation{}, err
	}
	p := settings.ProtectivePutParams
	m, found := metrics.Opportunity(metrics.OpportunityInput{
		Now:    a.now(),
		IVRank: a.ivRank(ctx, snap, o.Symbol),
		Chain:  chain,
		Stock:  o.Stock,
		Filter: metrics.ContractFilter{
			Type:             models.OptionTypePut,
			TargetOTMPercent: p.TargetOTMPercent,
			MinDTE:           p.MinDTE,
		},
		Contracts: o.Contracts,
	})
	d := rules.ProtectivePutOpportunity(m, found, risk, p)
	return a.recommend(o.AccountID, o.Symbol, []string{o.Stock.ID}, m, d), nil
}

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

// CoveredCallAnalyzer evaluates calls written against stock and stock lots
// that could carry a new call.
type CoveredCallAnalyzer struct {
	base
}

var _ Analyzer = (*CoveredCallAnalyzer)(nil)

// NewCoveredCallAnalyzer creates the covered call analyzer
func NewCoveredCallAnalyzer(deps Deps) *CoveredCallAnalyzer {
	return &CoveredCallAnalyzer{base: newBase(models.StrategyCoveredCall, deps)}
}

// Analyze recommends an action for every covered call and, unless disabled,
// a SELL_CALL or NONE for every uncovered 100-share lot.
func (a *CoveredCallAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	settings := req.Settings.CoveredCall
	return a.runStockLegs(ctx, req, stockLegRun{
		settings:          settings,
		find:              pairing.FindCoveredCalls,
		skipOpportunities: settings.SkipOpportunities,
		pair: func(ctx context.Context, snap *marketdata.Snapshot, p pairing.StockLegPair, risk models.RiskLevel) (models.Recommendation, error) {
			return a.analyzePair(ctx, snap, p, risk, settings)
		},
		opportunity: func(ctx context.Context, snap *marketdata.Snapshot, o pairing.Opportunity, _ models.RiskLevel) (models.Recommendation, error) {
			return a.analyzeOpportunity(ctx, snap, o, settings)
		},
	})
}

func (a *CoveredCallAnalyzer) analyzePair(
	ctx context.Context,
	snap *marketdata.Snapshot,
	p pairing.StockLegPair,
	risk models.RiskLevel,
	settings config.CoveredCallSettings,
) (models.Recommendation, error) {
	quote, err := a.legMetrics(ctx, snap, p.Option)
	if err != nil {
		return models.Recommendation{}, err
	}
	m := metrics.CoveredCall(metrics.StockLegInput{
		Stock: p.Stock,
		LegInput: metrics.LegInput{
			Now:        a.now(),
			IVRank:     a.ivRank(ctx, snap, p.Symbol),
			Conditions: a.conditions(ctx, snap, p.Symbol),
			Quote:      *quote,
			Position:   p.Option,
		},
	})
	d := rules.CoveredCall(m, risk, settings.CoveredCallParams)
	return a.recommend(p.AccountID, p.Symbol, p.LegIDs(), m, d), nil
}

func (a *CoveredCallAnalyzer) analyzeOpportunity(
	ctx context.Context,
	snap *marketdata.Snapshot,
	o pairing.Opportunity,
	settings config.CoveredCallSettings,
) (models.Recommendation, error) {
	chain, err := a.chain(ctx, snap, o.Symbol)
	if err != nil {
		return models.Recommendation{}, err
	}
	p := settings.CoveredCallParams
	m, found := metrics.Opportunity(metrics.OpportunityInput{
		Now:    a.now(),
		IVRank: a.ivRank(ctx, snap, o.Symbol),
		Chain:  chain,
		Stock:  o.Stock,
		Filter: metrics.ContractFilter{
			Type:             models.OptionTypeCall,
			TargetOTMPercent: p.TargetOTMPercent,
			MinDTE:           p.MinDTE,
			MaxDTE:           p.MaxDTE,
		},
		Contracts: o.Contracts,
	})
	d := rules.CoveredCallOpportunity(m, found, p)
	return a.recommend(o.AccountID, o.Symbol, []string{o.Stock.ID}, m, d), nil
}

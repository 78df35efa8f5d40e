package strategy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/metrics"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
	"github.com/eddiefleurent/portfolio_scanner/internal/rules"
)

// CashSecuredPutAnalyzer evaluates puts written against cash and idle cash
// that could secure a new put, the first leg of the wheel.
type CashSecuredPutAnalyzer struct {
	base
}

var _ Analyzer = (*CashSecuredPutAnalyzer)(nil)

// NewCashSecuredPutAnalyzer creates the cash-secured put analyzer
func NewCashSecuredPutAnalyzer(deps Deps) *CashSecuredPutAnalyzer {
	return &CashSecuredPutAnalyzer{base: newBase(models.StrategyCashSecuredPut, deps)}
}

// Analyze recommends an action for every cash-secured put and, unless
// disabled, a SELL_PUT or NONE for every idle balance and candidate symbol.
func (a *CashSecuredPutAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	accounts, err := a.accounts(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("loading accounts: %w", err)
	}
	settings := req.Settings.CashSecuredPut
	watchlist := settings.Watchlist()

	var tasks []task
	var pairs, opportunities int
	for _, acct := range accounts {
		risk := riskFor(settings, acct)
		found := pairing.FindCashSecuredPuts(acct, watchlist)
		for _, p := range found.Pairs {
			pairs++
			tasks = append(tasks, func() (*models.Recommendation, string, string, error) {
				rec, err := a.analyzePair(ctx, req.Snapshot, p, risk, settings)
				return &rec, p.AccountID, p.Symbol, err
			})
		}
		if settings.SkipOpportunities {
			continue
		}
		for _, o := range found.Opportunities {
			opportunities++
			tasks = append(tasks, func() (*models.Recommendation, string, string, error) {
				rec, err := a.analyzeOpportunity(ctx, req.Snapshot, o, settings)
				return &rec, o.AccountID, o.Symbol, err
			})
		}
	}

	recs, err := a.runTasks(ctx, tasks)
	if err != nil {
		return Result{}, err
	}
	a.log().WithFields(logrus.Fields{
		"pairs":           pairs,
		"opportunities":   opportunities,
		"recommendations": len(recs),
	}).Info("Cash-secured put analysis complete")
	return Result{Recommendations: recs, Scanned: len(tasks)}, nil
}

func (a *CashSecuredPutAnalyzer) analyzePair(
	ctx context.Context,
	snap *marketdata.Snapshot,
	p pairing.CashLegPair,
	risk models.RiskLevel,
	settings config.CashSecuredPutSettings,
) (models.Recommendation, error) {
	quote, err := a.legMetrics(ctx, snap, p.Option)
	if err != nil {
		return models.Recommendation{}, err
	}
	m := metrics.CashSecuredPut(metrics.CashLegInput{
		Cash: p.Cash,
		LegInput: metrics.LegInput{
			Now:        a.now(),
			IVRank:     a.ivRank(ctx, snap, p.Symbol),
			Conditions: a.conditions(ctx, snap, p.Symbol),
			Quote:      *quote,
			Position:   p.Option,
		},
	})
	d := rules.CashSecuredPut(m, risk, settings.CashSecuredPutParams)
	return a.recommend(p.AccountID, p.Symbol, p.LegIDs(), m, d), nil
}

func (a *CashSecuredPutAnalyzer) analyzeOpportunity(
	ctx context.Context,
	snap *marketdata.Snapshot,
	o pairing.CashOpportunity,
	settings config.CashSecuredPutSettings,
) (models.Recommendation, error) {
	chain, err := a.chain(ctx, snap, o.Symbol)
	if err != nil {
		return models.Recommendation{}, err
	}
	p := settings.CashSecuredPutParams
	m, found := metrics.CashSecuredPutOpportunity(metrics.CashOpportunityInput{
		Now:    a.now(),
		IVRank: a.ivRank(ctx, snap, o.Symbol),
		Chain:  chain,
		Filter: metrics.ContractFilter{
			Type:             models.OptionTypePut,
			TargetOTMPercent: p.TargetOTMPercent,
			MinDTE:           p.MinDTE,
			MaxDTE:           p.MaxDTE,
		},
		Idle:         o.Idle,
		MinCashRatio: p.MinCashRatio,
		MaxContracts: p.MaxContracts,
	})
	d := rules.CashSecuredPutOpportunity(m, found, p)
	return a.recommend(o.AccountID, o.Symbol, []string{o.Cash.ID}, m, d), nil
}

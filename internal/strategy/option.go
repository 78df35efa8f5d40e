package strategy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/metrics"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
	"github.com/eddiefleurent/portfolio_scanner/internal/rules"
)

// OptionAnalyzer evaluates every long option leg on its own. Calls written
// against stock and puts written against cash belong to their own analyzers.
type OptionAnalyzer struct {
	base
}

var _ Analyzer = (*OptionAnalyzer)(nil)

// NewOptionAnalyzer creates the single-leg option analyzer
func NewOptionAnalyzer(deps Deps) *OptionAnalyzer {
	return &OptionAnalyzer{base: newBase(models.StrategyOption, deps)}
}

// Analyze recommends an action for each long option leg.
func (a *OptionAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	accounts, err := a.accounts(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("loading accounts: %w", err)
	}
	settings := req.Settings.Option

	type job struct {
		accountID string
		leg       models.Position
		risk      models.RiskLevel
	}
	var jobs []job
	for _, acct := range accounts {
		risk := riskFor(settings, acct)
		for _, leg := range pairing.LongLegs(acct) {
			jobs = append(jobs, job{accountID: acct.ID, leg: leg, risk: risk})
		}
	}

	slots := make([]*models.Recommendation, len(jobs))
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			rec, err := a.analyzeLeg(ctx, req.Snapshot, j.accountID, j.leg, j.risk, settings.OptionParams)
			if err != nil {
				a.skipped(j.accountID, j.leg.Underlying(), err)
				return nil
			}
			slots[i] = &rec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	recs := collect(slots)
	a.log().WithFields(logrus.Fields{
		"legs":            len(jobs),
		"recommendations": len(recs),
	}).Info("Option analysis complete")
	return Result{Recommendations: recs, Scanned: len(jobs)}, nil
}

func (a *OptionAnalyzer) analyzeLeg(
	ctx context.Context,
	snap *marketdata.Snapshot,
	accountID string,
	leg models.Position,
	risk models.RiskLevel,
	params rules.OptionParams,
) (models.Recommendation, error) {
	quote, err := a.legMetrics(ctx, snap, leg)
	if err != nil {
		return models.Recommendation{}, err
	}
	symbol := leg.Underlying()
	m := metrics.Option(metrics.LegInput{
		Now:        a.now(),
		IVRank:     a.ivRank(ctx, snap, symbol),
		Conditions: a.conditions(ctx, snap, symbol),
		Quote:      *quote,
		Position:   leg,
	})
	d := rules.Option(m, leg.OptionType, risk, params)
	return a.recommend(accountID, symbol, []string{leg.ID}, m, d), nil
}

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

// StraddleStrangleAnalyzer evaluates long call + long put pairs.
type StraddleStrangleAnalyzer struct {
	base
}

var _ Analyzer = (*StraddleStrangleAnalyzer)(nil)

// NewStraddleStrangleAnalyzer creates the straddle/strangle analyzer
func NewStraddleStrangleAnalyzer(deps Deps) *StraddleStrangleAnalyzer {
	return &StraddleStrangleAnalyzer{base: newBase(models.StrategyStraddleStrangle, deps)}
}

// Analyze pairs every account's legs and recommends an action per pair.
// Pairs with missing leg data are logged and skipped.
func (a *StraddleStrangleAnalyzer) Analyze(ctx context.Context, req Request) (Result, error) {
	accounts, err := a.accounts(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("loading accounts: %w", err)
	}
	settings := req.Settings.StraddleStrangle

	type job struct {
		pair pairing.StraddleStranglePair
		risk models.RiskLevel
	}
	var jobs []job
	for _, acct := range accounts {
		risk := riskFor(settings, acct)
		for _, pair := range pairing.FindStraddleStranglePairs(acct) {
			jobs = append(jobs, job{pair: pair, risk: risk})
		}
	}

	slots := make([]*models.Recommendation, len(jobs))
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			rec, err := a.analyzePair(ctx, req.Snapshot, j.pair, j.risk)
			if err != nil {
				a.skipped(j.pair.AccountID, j.pair.Symbol, err)
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
		"pairs":           len(jobs),
		"recommendations": len(recs),
	}).Info("Straddle/strangle analysis complete")
	return Result{Recommendations: recs, Scanned: len(jobs)}, nil
}

func (a *StraddleStrangleAnalyzer) analyzePair(
	ctx context.Context,
	snap *marketdata.Snapshot,
	pair pairing.StraddleStranglePair,
	risk models.RiskLevel,
) (models.Recommendation, error) {
	// both legs must be in hand before any metric is computed
	var call, put *marketdata.OptionMetrics
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		call, err = a.legMetrics(gctx, snap, pair.Call)
		return err
	})
	g.Go(func() (err error) {
		put, err = a.legMetrics(gctx, snap, pair.Put)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Recommendation{}, err
	}

	m := metrics.StraddleStrangle(metrics.StraddleStrangleInput{
		Now:        a.now(),
		Call:       *call,
		Put:        *put,
		IVRank:     a.ivRank(ctx, snap, pair.Symbol),
		Conditions: a.conditions(ctx, snap, pair.Symbol),
		Pair:       pair,
	})
	d := rules.StraddleStrangle(m, risk)

	rec := a.recommend(pair.AccountID, pair.Symbol, pair.LegIDs(), m, d)
	rec.IsStraddle = pairing.IsStraddle(m.CallStrike, m.PutStrike, m.StockPrice)
	return rec, nil
}

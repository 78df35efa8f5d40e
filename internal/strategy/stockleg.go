package strategy

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/pairing"
)

// stockLegRun describes one pass over option legs matched to stock plus the
// unmatched lots that could take a new leg.
type stockLegRun struct {
	settings          config.StrategySettings
	find              func(models.Account) pairing.StockLegResult
	pair              func(context.Context, *marketdata.Snapshot, pairing.StockLegPair, models.RiskLevel) (models.Recommendation, error)
	opportunity       func(context.Context, *marketdata.Snapshot, pairing.Opportunity, models.RiskLevel) (models.Recommendation, error)
	skipOpportunities bool
}

// task analyzes one pair or opportunity. It reports the account and symbol
// so a failure can be logged against them.
type task func() (*models.Recommendation, string, string, error)

func (b *base) runStockLegs(ctx context.Context, req Request, run stockLegRun) (Result, error) {
	accounts, err := b.accounts(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("loading accounts: %w", err)
	}

	var tasks []task
	var pairs, opportunities int
	for _, acct := range accounts {
		risk := riskFor(run.settings, acct)
		found := run.find(acct)
		for _, p := range found.Pairs {
			pairs++
			tasks = append(tasks, func() (*models.Recommendation, string, string, error) {
				rec, err := run.pair(ctx, req.Snapshot, p, risk)
				return &rec, p.AccountID, p.Symbol, err
			})
		}
		if run.skipOpportunities {
			continue
		}
		for _, o := range found.Opportunities {
			opportunities++
			tasks = append(tasks, func() (*models.Recommendation, string, string, error) {
				rec, err := run.opportunity(ctx, req.Snapshot, o, risk)
				return &rec, o.AccountID, o.Symbol, err
			})
		}
	}

	recs, err := b.runTasks(ctx, tasks)
	if err != nil {
		return Result{}, err
	}
	b.log().WithFields(logrus.Fields{
		"pairs":           pairs,
		"opportunities":   opportunities,
		"recommendations": len(recs),
	}).Info("Stock-leg analysis complete")
	return Result{Recommendations: recs, Scanned: len(tasks)}, nil
}

// runTasks runs tasks with bounded fan-out, keeping their order. A failed
// task is logged and dropped.
func (b *base) runTasks(ctx context.Context, tasks []task) ([]models.Recommendation, error) {
	slots := make([]*models.Recommendation, len(tasks))
	var g errgroup.Group
	g.SetLimit(b.limit)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			rec, accountID, symbol, err := t()
			if err != nil {
				b.skipped(accountID, symbol, err)
				return nil
			}
			slots[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return collect(slots), nil
}

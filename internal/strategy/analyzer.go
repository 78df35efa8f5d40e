// Package strategy runs the per-strategy analyzers: each one pairs positions,
// fetches the market data it needs, computes metrics and applies its rule engine.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/metrics"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/rules"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
)

const defaultMaxConcurrency = 8

// errMissingQuote marks a leg the gateway has no metrics for.
var errMissingQuote = errors.New("option metrics unavailable")

// Analyzer produces recommendations for one strategy.
type Analyzer interface {
	Strategy() models.Strategy
	Analyze(ctx context.Context, req Request) (Result, error)
}

// Request scopes one analyzer run.
type Request struct {
	// Snapshot is consulted before the gateway; nil means fetch everything.
	Snapshot *marketdata.Snapshot
	// AccountID limits the run to one account; empty means every account.
	AccountID string
	// Accounts, when set, are used instead of loading from storage.
	Accounts []models.Account
	Settings config.Settings
}

// Result is what an analyzer evaluated and recommended.
type Result struct {
	Recommendations []models.Recommendation
	// Scanned counts pairs, legs and opportunities evaluated, including
	// those skipped for missing data.
	Scanned int
}

// Deps are the collaborators shared by every analyzer.
type Deps struct {
	Gateway        marketdata.Gateway
	Store          storage.Interface
	Logger         *logrus.Logger
	Now            func() time.Time
	MaxConcurrency int
}

// base carries the lookups every analyzer shares.
type base struct {
	gateway  marketdata.Gateway
	store    storage.Interface
	logger   *logrus.Logger
	now      func() time.Time
	limit    int
	strategy models.Strategy
}

func newBase(strategy models.Strategy, deps Deps) base {
	b := base{
		gateway:  deps.Gateway,
		store:    deps.Store,
		logger:   deps.Logger,
		now:      deps.Now,
		limit:    deps.MaxConcurrency,
		strategy: strategy,
	}
	if b.logger == nil {
		b.logger = logrus.New()
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.limit <= 0 {
		b.limit = defaultMaxConcurrency
	}
	return b
}

// Strategy returns the strategy the analyzer evaluates.
func (b *base) Strategy() models.Strategy {
	return b.strategy
}

func (b *base) log() *logrus.Entry {
	return b.logger.WithField("scanner", string(b.strategy))
}

// accounts returns the accounts in scope for req.
func (b *base) accounts(ctx context.Context, req Request) ([]models.Account, error) {
	if req.Accounts != nil {
		if req.AccountID == "" {
			return req.Accounts, nil
		}
		for _, a := range req.Accounts {
			if a.ID == req.AccountID {
				return []models.Account{a}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", storage.ErrAccountNotFound, req.AccountID)
	}
	if b.store == nil {
		return nil, fmt.Errorf("no account source configured")
	}
	if req.AccountID != "" {
		acct, err := b.store.GetAccount(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		return []models.Account{*acct}, nil
	}
	return b.store.ListAccounts(ctx)
}

// legMetrics returns the quote for an option position, preloaded or fetched.
func (b *base) legMetrics(ctx context.Context, snap *marketdata.Snapshot, p models.Position) (*marketdata.OptionMetrics, error) {
	key := marketdata.KeyFor(p)
	if m, ok := snap.OptionMetrics(key); ok {
		if m == nil {
			return nil, fmt.Errorf("%s: %w", key, errMissingQuote)
		}
		return m, nil
	}
	m, err := b.gateway.GetOptionMetrics(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%s: %w", key, errMissingQuote)
	}
	return m, nil
}

// conditions returns market conditions for symbol; failures degrade to nil.
func (b *base) conditions(ctx context.Context, snap *marketdata.Snapshot, symbol string) *marketdata.MarketConditions {
	if c, ok := snap.MarketConditions(symbol); ok {
		return c
	}
	c, err := b.gateway.GetOptionMarketConditions(ctx, symbol)
	if err != nil {
		b.log().WithError(err).WithField("symbol", symbol).Debug("Market conditions unavailable")
		return nil
	}
	return c
}

// ivRank returns the IV rank for symbol; failures degrade to nil.
func (b *base) ivRank(ctx context.Context, snap *marketdata.Snapshot, symbol string) *float64 {
	if r, ok := snap.IVRank(symbol); ok {
		return r
	}
	r, err := b.gateway.GetIVRankOrPercentile(ctx, symbol)
	if err != nil {
		b.log().WithError(err).WithField("symbol", symbol).Debug("IV rank unavailable")
		return nil
	}
	return r
}

// chain returns the option chain for symbol, preloaded or fetched.
func (b *base) chain(ctx context.Context, snap *marketdata.Snapshot, symbol string) (*marketdata.OptionChain, error) {
	if c, ok := snap.Chain(symbol); ok {
		return c, nil
	}
	return b.gateway.GetOptionChainDetailed(ctx, symbol)
}

// recommend assembles a recommendation from a metrics snapshot and decision.
// Rules run on the full-precision snapshot; only the stored copy is rounded.
func (b *base) recommend(accountID, symbol string, legs []string, m models.MetricsSnapshot, d rules.Decision) models.Recommendation {
	return models.Recommendation{
		ID:             uuid.NewString(),
		Strategy:       b.strategy,
		AccountID:      accountID,
		Symbol:         symbol,
		Action:         d.Action,
		Confidence:     d.Confidence,
		Reason:         d.Reason,
		LegPositionIDs: legs,
		Metrics:        metrics.Rounded(m),
		CreatedAt:      b.now().UTC(),
	}
}

// riskFor resolves the effective risk level of an account.
func riskFor(settings config.StrategySettings, account models.Account) models.RiskLevel {
	return rules.ResolveRisk(settings.Risk(), account.RiskLevel)
}

// skipped logs a per-item failure. One bad symbol never aborts the analyzer.
func (b *base) skipped(accountID, symbol string, err error) {
	entry := b.log().WithFields(logrus.Fields{
		"account_id": accountID,
		"symbol":     symbol,
	}).WithError(err)
	if errors.Is(err, errMissingQuote) || errors.Is(err, marketdata.ErrNoData) {
		entry.Warn("Skipping position: market data unavailable")
		return
	}
	entry.Error("Skipping position: analysis failed")
}

// collect drops the empty slots left by skipped items, keeping input order.
func collect(slots []*models.Recommendation) []models.Recommendation {
	out := make([]models.Recommendation, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Package scanner runs every strategy analyzer against one account or the
// whole portfolio, sharing prefetched market data and isolating failures.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/portfolio_scanner/internal/alerting"
	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/storage"
	"github.com/eddiefleurent/portfolio_scanner/internal/strategy"
)

const (
	defaultMaxConcurrency = 8
	defaultSummaryWidth   = 100

	// stage names reported in UnifiedResult.Errors
	stageAccounts = "accounts"
)

// Options configures a Scanner.
type Options struct {
	Gateway    marketdata.Gateway
	Store      storage.Interface
	ChainCache *marketdata.ChainCache
	Logger     *logrus.Logger
	Now        func() time.Time
	// Analyzers replaces the default analyzers, one per strategy.
	Analyzers      []strategy.Analyzer
	MaxConcurrency int
	SummaryWidth   int
	// ScanTimeout bounds one Run; zero means no limit.
	ScanTimeout time.Duration
}

// Scanner is the unified options scanner.
type Scanner struct {
	gateway   marketdata.Gateway
	store     storage.Interface
	cache     *marketdata.ChainCache
	logger    *logrus.Logger
	now       func() time.Time
	recorder  *alerting.Recorder
	analyzers []strategy.Analyzer
	limit     int
	width     int
	timeout   time.Duration
}

// New creates a scanner from opts.
func New(opts Options) *Scanner {
	s := &Scanner{
		gateway:   opts.Gateway,
		store:     opts.Store,
		cache:     opts.ChainCache,
		logger:    opts.Logger,
		now:       opts.Now,
		analyzers: opts.Analyzers,
		limit:     opts.MaxConcurrency,
		width:     opts.SummaryWidth,
		timeout:   opts.ScanTimeout,
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.limit <= 0 {
		s.limit = defaultMaxConcurrency
	}
	if s.width <= 0 {
		s.width = defaultSummaryWidth
	}
	if s.analyzers == nil {
		deps := strategy.Deps{
			Gateway:        s.gateway,
			Store:          s.store,
			Logger:         s.logger,
			Now:            s.now,
			MaxConcurrency: s.limit,
		}
		s.analyzers = []strategy.Analyzer{
			strategy.NewOptionAnalyzer(deps),
			strategy.NewCoveredCallAnalyzer(deps),
			strategy.NewProtectivePutAnalyzer(deps),
			strategy.NewStraddleStrangleAnalyzer(deps),
			strategy.NewCashSecuredPutAnalyzer(deps),
		}
	}
	s.recorder = alerting.NewRecorder(s.store, s.logger, s.now)
	return s
}

// NewFromConfig creates a scanner with the settings of the scanner section.
func NewFromConfig(cfg *config.Config, gateway marketdata.Gateway, store storage.Interface, logger *logrus.Logger) *Scanner {
	return New(Options{
		Gateway:        gateway,
		Store:          store,
		ChainCache:     marketdata.NewChainCache(cfg.Scanner.ChainCacheSize, cfg.GetChainCacheTTL()),
		Logger:         logger,
		MaxConcurrency: cfg.Scanner.MaxConcurrency,
		SummaryWidth:   cfg.Scanner.SummaryWidth,
		ScanTimeout:    cfg.GetScanTimeout(),
	})
}

// Run scans the accounts in req with every enabled analyzer, stores the
// results and renders a summary. It never fails as a whole: anything that
// went wrong is listed in the result's Errors.
func (s *Scanner) Run(ctx context.Context, req config.ScanRequest) *UnifiedResult {
	started := s.now()
	result := newResult(req.AccountID, started.UTC())
	defer func() {
		result.DurationMs = s.now().Sub(started).Milliseconds()
	}()

	// writes outlive the scan deadline so finished analyzers are never lost
	persistCtx := context.WithoutCancel(ctx)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	log := s.logger.WithField("account_id", req.AccountID)

	accounts, err := s.accounts(ctx, req.AccountID)
	if err != nil {
		log.WithError(err).Error("Failed to load accounts")
		result.fail(stageAccounts, err)
		result.RecommendationSummary = Summary(nil, nil, s.width)
		return result
	}

	snap := s.prefetch(ctx, planPrefetch(accounts, req.Settings))

	outcomes := s.analyze(ctx, strategy.Request{
		Snapshot: snap,
		Accounts: accounts,
		Settings: req.Settings,
	})
	s.persist(persistCtx, outcomes, alerting.Options{CreateAlerts: req.CreateAlerts})

	result.apply(outcomes)
	result.RecommendationSummary = Summary(outcomes, displayNames(accounts), s.width)

	log.WithFields(logrus.Fields{
		"accounts":        len(accounts),
		"scanned":         result.Totals.Scanned,
		"recommendations": result.Totals.Recommendations,
		"stored":          result.Totals.Stored,
		"alerts":          result.Totals.AlertsCreated,
		"errors":          len(result.Errors),
	}).Info("Unified scan complete")
	return result
}

// accounts loads the accounts in scope once for all analyzers.
func (s *Scanner) accounts(ctx context.Context, accountID string) ([]models.Account, error) {
	if accountID == "" {
		return s.store.ListAccounts(ctx)
	}
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return []models.Account{*acct}, nil
}

// analyze runs the enabled analyzers concurrently. Results keep analyzer order.
func (s *Scanner) analyze(ctx context.Context, req strategy.Request) []ScanOutcome {
	var active []strategy.Analyzer
	for _, a := range s.analyzers {
		if req.Settings.Enabled(a.Strategy()) {
			active = append(active, a)
		}
	}

	outcomes := make([]ScanOutcome, len(active))
	var wg sync.WaitGroup
	for i, a := range active {
		i, a := i, a
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = s.runAnalyzer(ctx, a, req)
		}()
	}
	wg.Wait()
	return outcomes
}

// runAnalyzer turns an error or panic into a FailedOutcome.
func (s *Scanner) runAnalyzer(ctx context.Context, a strategy.Analyzer, req strategy.Request) (out ScanOutcome) {
	log := s.logger.WithField("scanner", string(a.Strategy()))
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("analyzer panicked: %v", r)
			log.WithError(err).Error("Analyzer failed")
			out = &FailedOutcome{Strategy: a.Strategy(), Err: err}
		}
	}()

	res, err := a.Analyze(ctx, req)
	if err != nil {
		log.WithError(err).Error("Analyzer failed")
		return &FailedOutcome{Strategy: a.Strategy(), Err: err}
	}
	return &CompletedOutcome{
		Strategy:        a.Strategy(),
		Recommendations: res.Recommendations,
		Scanned:         res.Scanned,
	}
}

// persist stores each completed analyzer's recommendations concurrently.
func (s *Scanner) persist(ctx context.Context, outcomes []ScanOutcome, opts alerting.Options) {
	var g errgroup.Group
	for _, o := range outcomes {
		done, ok := o.(*CompletedOutcome)
		if !ok || len(done.Recommendations) == 0 {
			continue
		}
		g.Go(func() error {
			res, err := s.recorder.Store(ctx, done.Recommendations, opts)
			done.Stored = res.Stored
			done.AlertsCreated = res.AlertsCreated
			if err != nil {
				done.PersistErr = fmt.Errorf("storing recommendations: %w", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// displayNames maps account IDs to broker or portfolio names.
func displayNames(accounts []models.Account) map[string]string {
	names := make(map[string]string, len(accounts))
	for i := range accounts {
		names[accounts[i].ID] = accounts[i].DisplayName()
	}
	return names
}

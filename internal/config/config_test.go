package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

func TestLoad(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.IsMock())
	assert.Equal(t, 8, cfg.Scanner.MaxConcurrency)
	assert.Equal(t, 2*time.Minute, cfg.GetScanTimeout())
	assert.Equal(t, 5*time.Minute, cfg.GetChainCacheTTL())
	assert.Equal(t, 80.0, cfg.Strategies.CoveredCall.MinPremiumCapture)
	assert.Equal(t, 7.5, cfg.Strategies.ProtectivePut.TargetOTMPercent)
	assert.Equal(t, models.RiskMedium, cfg.Strategies.StraddleStrangle.RiskLevel)
	assert.Equal(t, 1.1, cfg.Strategies.CashSecuredPut.MinCashRatio)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Strategies.CashSecuredPut.Symbols)
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	assert.Error(t, err)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("storage:\n  path: test.db\n"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Environment.LogLevel)
	assert.Equal(t, "mock", cfg.MarketData.Provider)
	assert.Equal(t, defaultMaxConcurrency, cfg.Scanner.MaxConcurrency)
	assert.Equal(t, defaultSummaryWidth, cfg.Scanner.SummaryWidth)
	assert.Equal(t, defaultScanTimeout, cfg.GetScanTimeout())
	assert.Equal(t, defaultMarketTimeout, cfg.GetMarketTimeout())
	assert.True(t, cfg.CreateAlerts())
	assert.Equal(t, 21, cfg.Strategies.CoveredCall.MinDTE, "unset strategy sections keep stock thresholds")
	assert.Equal(t, 50.0, cfg.Strategies.Option.ProfitTarget)
}

func TestParse_PartialStrategyOverride(t *testing.T) {
	doc := `
storage:
  path: test.db
strategies:
  covered_call:
    min_premium_capture: 70
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 70.0, cfg.Strategies.CoveredCall.MinPremiumCapture)
	assert.Equal(t, 0.95, cfg.Strategies.CoveredCall.NearStrikeRatio)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("SCANNER_TEST_KEY", "abc123")
	doc := `
market_data:
  provider: tradier
  api_key: ${SCANNER_TEST_KEY}
storage:
  path: test.db
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "abc123", cfg.MarketData.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown field", "storage:\n  path: x.db\nbogus: 1\n", "parsing config"},
		{"bad log level", "environment:\n  log_level: loud\nstorage:\n  path: x.db\n", "log_level"},
		{"tradier without key", "market_data:\n  provider: tradier\nstorage:\n  path: x.db\n", "api_key"},
		{"unknown provider", "market_data:\n  provider: yahoo\nstorage:\n  path: x.db\n", "provider"},
		{"missing storage path", "environment:\n  log_level: info\n", "storage.path"},
		{"bad timeout", "market_data:\n  timeout: soon\nstorage:\n  path: x.db\n", "market_data.timeout"},
		{"negative concurrency", "scanner:\n  max_concurrency: -1\nstorage:\n  path: x.db\n", "max_concurrency"},
		{"narrow summary", "scanner:\n  summary_width: 5\nstorage:\n  path: x.db\n", "summary_width"},
		{"bad failure ratio", "market_data:\n  circuit_breaker:\n    failure_ratio: 2\nstorage:\n  path: x.db\n", "failure_ratio"},
		{
			"bad strategy risk",
			"storage:\n  path: x.db\nstrategies:\n  option:\n    risk_level: extreme\n",
			"strategies: option",
		},
		{
			"cash ratio below one",
			"storage:\n  path: x.db\nstrategies:\n  cash_secured_put:\n    min_cash_ratio: 0.5\n",
			"min_cash_ratio",
		},
		{
			"blank watchlist symbol",
			"storage:\n  path: x.db\nstrategies:\n  cash_secured_put:\n    symbols: [\"\"]\n",
			"symbols",
		},
		{
			"inverted dte window",
			"storage:\n  path: x.db\nstrategies:\n  covered_call:\n    min_dte: 50\n    max_dte: 20\n",
			"dte window",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":memory:", cfg.Storage.Path)
}

func TestSettings_For(t *testing.T) {
	s := DefaultSettings()
	for _, strategy := range models.AllStrategies {
		got := s.For(strategy)
		require.NotNil(t, got)
		assert.Equal(t, strategy, got.Strategy())
		assert.True(t, s.Enabled(strategy))
	}
	assert.Nil(t, s.For("iron_condor"))

	_, ok := s.For(models.StrategyCoveredCall).(CoveredCallSettings)
	assert.True(t, ok)
}

func TestCashSecuredPutSettings(t *testing.T) {
	s := DefaultSettings().CashSecuredPut
	require.NoError(t, s.Validate())
	assert.Equal(t, models.StrategyCashSecuredPut, s.Strategy())
	assert.Empty(t, s.Watchlist())

	s.Symbols = []string{" aapl", "MSFT "}
	assert.Equal(t, []string{"AAPL", "MSFT"}, s.Watchlist())

	s.MaxContracts = -1
	assert.ErrorContains(t, s.Validate(), "max_contracts")
}

func TestSettings_WithRisk(t *testing.T) {
	s := DefaultSettings()
	s.Option.RiskLevel = models.RiskHigh

	got := s.WithRisk(models.RiskLow)
	assert.Equal(t, models.RiskLow, got.StraddleStrangle.RiskLevel)
	assert.Equal(t, models.RiskLow, got.CoveredCall.Risk())
	assert.Equal(t, models.RiskLow, got.CashSecuredPut.Risk())
	assert.Equal(t, models.RiskHigh, got.Option.RiskLevel, "per-strategy setting wins")
	assert.Equal(t, models.RiskLevel(""), s.CoveredCall.RiskLevel, "receiver is not mutated")
}

func TestDecodeScanRequest(t *testing.T) {
	cfg := Default()

	t.Run("empty body uses defaults", func(t *testing.T) {
		req, err := cfg.DecodeScanRequest(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, req.AccountID)
		assert.True(t, req.CreateAlerts)
		assert.Equal(t, DefaultSettings().CoveredCall, req.Settings.CoveredCall)
	})

	t.Run("overrides layer over defaults", func(t *testing.T) {
		body := `{
			"account_id": " acct-1 ",
			"risk_level": "low",
			"create_alerts": false,
			"strategies": {
				"covered_call": {"min_premium_capture": 60},
				"option": {"disabled": true}
			}
		}`
		req, err := cfg.DecodeScanRequest(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, "acct-1", req.AccountID)
		assert.False(t, req.CreateAlerts)
		assert.Equal(t, 60.0, req.Settings.CoveredCall.MinPremiumCapture)
		assert.Equal(t, 45, req.Settings.CoveredCall.MaxDTE)
		assert.Equal(t, models.RiskLow, req.Settings.ProtectivePut.RiskLevel)
		assert.False(t, req.Settings.Enabled(models.StrategyOption))
		assert.Equal(t, 21, cfg.Strategies.CoveredCall.MinDTE)
		assert.Equal(t, 80.0, cfg.Strategies.CoveredCall.MinPremiumCapture, "config defaults untouched")
	})

	invalid := map[string]string{
		"malformed json":   `{"account_id":`,
		"unknown field":    `{"acount_id": "x"}`,
		"unknown strategy": `{"strategies": {"iron_condor": {}}}`,
		"unknown option":   `{"strategies": {"option": {"profit": 10}}}`,
		"bad risk":         `{"risk_level": "reckless"}`,
		"bad threshold":    `{"strategies": {"option": {"stop_loss": 150}}}`,
		"bad cash ratio":   `{"strategies": {"cash_secured_put": {"min_cash_ratio": 0.9}}}`,
	}
	for name, body := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := cfg.DecodeScanRequest(strings.NewReader(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidScanRequest))
		})
	}
}

// Command scanner runs the portfolio options scanner from the terminal or as
// an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eddiefleurent/portfolio_scanner/internal/config"
	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/mock"
	"github.com/eddiefleurent/portfolio_scanner/internal/retry"
)

var configPath string

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scanner",
		Short: "Options recommendations for a stock and options portfolio",
		Long: `scanner pairs the positions of each account into covered calls,
protective puts and straddles/strangles, evaluates them against live option
metrics and records HOLD/CLOSE/ROLL style recommendations and alerts.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")

	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	return rootCmd
}

// loadConfig reads the config file and builds a logger at its level.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg.Environment.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

// newGateway stacks retries and a circuit breaker over the configured
// market data provider.
func newGateway(cfg *config.Config, logger *logrus.Logger) marketdata.Gateway {
	var base marketdata.Gateway
	if cfg.IsMock() {
		logger.Info("Using mock market data")
		base = mock.NewGateway()
	} else {
		base = marketdata.NewTradierGateway(
			cfg.MarketData.APIKey,
			cfg.MarketData.Sandbox,
			cfg.MarketData.BaseURL,
			cfg.GetMarketTimeout(),
			logger,
		)
	}

	retryCfg := retry.DefaultConfig
	retryCfg.MaxRetries = cfg.MarketData.MaxRetries
	retryCfg.Timeout = cfg.GetMarketTimeout()
	retried := retry.NewGateway(base, logger, retryCfg)

	return marketdata.NewCircuitBreakerGateway(retried, breakerSettings(cfg), logger)
}

// breakerSettings overlays the configured values on the breaker defaults.
func breakerSettings(cfg *config.Config) marketdata.CircuitBreakerSettings {
	settings := marketdata.DefaultCircuitBreakerSettings()
	interval, timeout := cfg.GetCircuitBreaker()
	if interval > 0 {
		settings.Interval = interval
	}
	if timeout > 0 {
		settings.Timeout = timeout
	}
	cb := cfg.MarketData.CircuitBreaker
	if cb.FailureRatio > 0 {
		settings.FailureRatio = cb.FailureRatio
	}
	if cb.MaxRequests > 0 {
		settings.MaxRequests = cb.MaxRequests
	}
	if cb.MinRequests > 0 {
		settings.MinRequests = cb.MinRequests
	}
	return settings
}

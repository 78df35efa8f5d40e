// Package retry wraps a market data gateway with per-call timeouts and
// jittered exponential backoff on transient failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds each individual attempt.
	Timeout time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        15 * time.Second,
}

// Gateway retries the calls of an underlying marketdata.Gateway.
type Gateway struct {
	gateway marketdata.Gateway
	logger  *logrus.Logger
	config  Config
}

var _ marketdata.Gateway = (*Gateway)(nil)

func NewGateway(gateway marketdata.Gateway, logger *logrus.Logger, config ...Config) *Gateway {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Gateway{
		gateway: gateway,
		logger:  logger,
		config:  cfg,
	}
}

func (g *Gateway) GetOptionMetrics(ctx context.Context, key marketdata.ContractKey) (*marketdata.OptionMetrics, error) {
	return do(ctx, g, "option metrics "+key.String(), func(ctx context.Context) (*marketdata.OptionMetrics, error) {
		return g.gateway.GetOptionMetrics(ctx, key)
	})
}

func (g *Gateway) GetOptionChainDetailed(ctx context.Context, symbol string) (*marketdata.OptionChain, error) {
	return do(ctx, g, "option chain "+symbol, func(ctx context.Context) (*marketdata.OptionChain, error) {
		return g.gateway.GetOptionChainDetailed(ctx, symbol)
	})
}

func (g *Gateway) GetOptionMarketConditions(ctx context.Context, symbol string) (*marketdata.MarketConditions, error) {
	return do(ctx, g, "market conditions "+symbol, func(ctx context.Context) (*marketdata.MarketConditions, error) {
		return g.gateway.GetOptionMarketConditions(ctx, symbol)
	})
}

func (g *Gateway) GetIVRankOrPercentile(ctx context.Context, symbol string) (*float64, error) {
	return do(ctx, g, "iv rank "+symbol, func(ctx context.Context) (*float64, error) {
		return g.gateway.GetIVRankOrPercentile(ctx, symbol)
	})
}

func do[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := g.config.InitialBackoff

	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("operation canceled: %w", ctx.Err())
		}

		res, err := runAttempt(ctx, g.config.Timeout, fn)
		if err == nil {
			return res, nil
		}
		lastErr = err

		// The caller's deadline or cancellation wins over retrying.
		if ctx.Err() != nil || !g.isTransientError(err) || attempt == g.config.MaxRetries {
			break
		}

		g.logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).WithError(err).Warn("Transient market data error, retrying")

		select {
		case <-time.After(backoff):
			backoff = g.calculateNextBackoff(backoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("operation canceled during backoff: %w", ctx.Err())
		}
	}

	if !g.isTransientError(lastErr) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%s failed after retries: %w", op, lastErr)
}

// runAttempt runs fn under the per-attempt timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}

func (g *Gateway) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > g.config.MaxBackoff {
		backoff = g.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			g.logger.WithError(err).Warn("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (g *Gateway) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, marketdata.ErrNoData) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *marketdata.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// CircuitBreakerGateway wraps a Gateway with circuit breaker functionality
type CircuitBreakerGateway struct {
	gateway Gateway
	breaker *gobreaker.CircuitBreaker
}

var _ Gateway = (*CircuitBreakerGateway)(nil)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after five requests at a 60% failure rate.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	gateway Gateway,
	fn func(Gateway) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(gateway) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerGateway creates a CircuitBreakerGateway with custom settings
func NewCircuitBreakerGateway(gateway Gateway, settings CircuitBreakerSettings, logger *logrus.Logger) *CircuitBreakerGateway {
	if logger == nil {
		logger = logrus.New()
	}
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// A missing quote is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerGateway{
		gateway: gateway,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State reports the current breaker state.
func (c *CircuitBreakerGateway) State() gobreaker.State {
	return c.breaker.State()
}

// GetOptionMetrics wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetOptionMetrics(ctx context.Context, key ContractKey) (*OptionMetrics, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*OptionMetrics, error) {
		return g.GetOptionMetrics(ctx, key)
	})
}

// GetOptionChainDetailed wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetOptionChainDetailed(ctx context.Context, symbol string) (*OptionChain, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*OptionChain, error) {
		return g.GetOptionChainDetailed(ctx, symbol)
	})
}

// GetOptionMarketConditions wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetOptionMarketConditions(ctx context.Context, symbol string) (*MarketConditions, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*MarketConditions, error) {
		return g.GetOptionMarketConditions(ctx, symbol)
	})
}

// GetIVRankOrPercentile wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) GetIVRankOrPercentile(ctx context.Context, symbol string) (*float64, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*float64, error) {
		return g.GetIVRankOrPercentile(ctx, symbol)
	})
}

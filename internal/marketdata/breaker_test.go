package marketdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubGateway fails every call after failAfter successful ones.
type stubGateway struct {
	err       error
	calls     int
	failAfter int
}

var _ Gateway = (*stubGateway)(nil)

func (s *stubGateway) fail() error {
	s.calls++
	if s.err != nil && s.calls > s.failAfter {
		return s.err
	}
	return nil
}

func (s *stubGateway) GetOptionMetrics(_ context.Context, key ContractKey) (*OptionMetrics, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &OptionMetrics{Bid: 1, Ask: 2, UnderlyingPrice: key.Strike}, nil
}

func (s *stubGateway) GetOptionChainDetailed(_ context.Context, symbol string) (*OptionChain, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &OptionChain{Symbol: symbol}, nil
}

func (s *stubGateway) GetOptionMarketConditions(_ context.Context, symbol string) (*MarketConditions, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return &MarketConditions{Symbol: symbol, Trend: TrendNeutral}, nil
}

func (s *stubGateway) GetIVRankOrPercentile(_ context.Context, _ string) (*float64, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return nil, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  1,
		Timeout:      time.Hour,
		MinRequests:  1,
		FailureRatio: 0.5,
	}
}

func TestCircuitBreakerGateway_PassesThrough(t *testing.T) {
	cb := NewCircuitBreakerGateway(&stubGateway{}, DefaultCircuitBreakerSettings(), quietLogger())
	ctx := context.Background()

	m, err := cb.GetOptionMetrics(ctx, ContractKey{Symbol: "SPY", Strike: 400})
	require.NoError(t, err)
	assert.Equal(t, 400.0, m.UnderlyingPrice)

	chain, err := cb.GetOptionChainDetailed(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, "SPY", chain.Symbol)

	cond, err := cb.GetOptionMarketConditions(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, TrendNeutral, cond.Trend)

	rank, err := cb.GetIVRankOrPercentile(ctx, "SPY")
	require.NoError(t, err)
	assert.Nil(t, rank)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreakerGateway_TripsOnFailures(t *testing.T) {
	stub := &stubGateway{err: errors.New("upstream down"), failAfter: 2}
	cb := NewCircuitBreakerGateway(stub, testBreakerSettings(), quietLogger())

	for i := 0; i < 6; i++ {
		_, err := cb.GetOptionChainDetailed(context.Background(), "SPY")
		if i < 2 {
			assert.NoErrorf(t, err, "call %d", i+1)
		} else {
			assert.Errorf(t, err, "call %d", i+1)
		}
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := cb.GetOptionMarketConditions(context.Background(), "SPY")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestCircuitBreakerGateway_NoDataDoesNotTrip(t *testing.T) {
	stub := &stubGateway{err: fmt.Errorf("SPY: %w", ErrNoData)}
	cb := NewCircuitBreakerGateway(stub, testBreakerSettings(), quietLogger())

	for i := 0; i < 5; i++ {
		_, err := cb.GetOptionChainDetailed(context.Background(), "SPY")
		assert.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

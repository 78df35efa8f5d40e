// Package marketdata provides the market data gateway the scanner reads quotes,
// option chains and volatility from. It includes a Tradier HTTP implementation,
// a circuit breaker wrapper and a bounded chain cache.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
)

// ErrNoData is returned when a provider has nothing for the requested symbol.
var ErrNoData = errors.New("no market data available")

// StrikeMatchEpsilon defines the precision tolerance for matching strike prices
const StrikeMatchEpsilon = 1e-3

// Gateway defines the market data operations the strategy analyzers consume.
type Gateway interface {
	// GetOptionMetrics returns quote and greek data for one contract, or nil
	// when the contract is not listed.
	GetOptionMetrics(ctx context.Context, key ContractKey) (*OptionMetrics, error)
	// GetOptionChainDetailed returns the near-term chain for a symbol.
	GetOptionChainDetailed(ctx context.Context, symbol string) (*OptionChain, error)
	// GetOptionMarketConditions returns trend and volatility context for a symbol.
	GetOptionMarketConditions(ctx context.Context, symbol string) (*MarketConditions, error)
	// GetIVRankOrPercentile returns the IV rank (0-100), or nil when unavailable.
	GetIVRankOrPercentile(ctx context.Context, symbol string) (*float64, error)
}

// ContractKey identifies a single listed option.
type ContractKey struct {
	Symbol     string
	Expiration string // YYYY-MM-DD
	Strike     float64
	Type       models.OptionType
}

// KeyFor builds the contract key of an option position.
func KeyFor(p models.Position) ContractKey {
	return ContractKey{
		Symbol:     p.Underlying(),
		Expiration: p.ExpirationDate(),
		Strike:     p.StrikePrice(),
		Type:       p.OptionType,
	}
}

// String renders the key in a stable form for logs and map keys.
func (k ContractKey) String() string {
	return fmt.Sprintf("%s|%s|%.3f|%s", strings.ToUpper(k.Symbol), k.Expiration, k.Strike, k.Type)
}

// OptionMetrics is a quote snapshot for one contract.
type OptionMetrics struct {
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
	Delta             *float64 `json:"delta,omitempty"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	Price             float64  `json:"price"`
	UnderlyingPrice   float64  `json:"underlying_price"`
	IntrinsicValue    float64  `json:"intrinsic_value"`
	TimeValue         float64  `json:"time_value"`
}

// OptionContract is one row of an option chain.
type OptionContract struct {
	Expiration        time.Time         `json:"expiration"`
	ImpliedVolatility *float64          `json:"implied_volatility,omitempty"`
	Delta             *float64          `json:"delta,omitempty"`
	Symbol            string            `json:"symbol"`
	Type              models.OptionType `json:"type"`
	Strike            float64           `json:"strike"`
	Bid               float64           `json:"bid"`
	Ask               float64           `json:"ask"`
	OpenInterest      int64             `json:"open_interest"`
}

// Mid returns the bid/ask midpoint.
func (c OptionContract) Mid() float64 {
	return (c.Bid + c.Ask) / 2
}

// OptionChain is the near-term chain for one underlying.
type OptionChain struct {
	FetchedAt       time.Time        `json:"fetched_at"`
	Symbol          string           `json:"symbol"`
	UnderlyingPrice float64          `json:"underlying_price"`
	Contracts       []OptionContract `json:"contracts"`
}

// Find returns the contract matching strike, type and expiration date, or nil.
func (c *OptionChain) Find(expiration string, strike float64, typ models.OptionType) *OptionContract {
	if c == nil {
		return nil
	}
	for i := range c.Contracts {
		oc := &c.Contracts[i]
		if oc.Type == typ && math.Abs(oc.Strike-strike) <= StrikeMatchEpsilon &&
			oc.Expiration.Format("2006-01-02") == expiration {
			return oc
		}
	}
	return nil
}

// Trend is the directional read of the underlying.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// MarketConditions summarizes the recent price action of an underlying.
type MarketConditions struct {
	RSI                  *float64 `json:"rsi,omitempty"`
	SMA50                *float64 `json:"sma50,omitempty"`
	HistoricalVolatility *float64 `json:"historical_volatility,omitempty"`
	Symbol               string   `json:"symbol"`
	Trend                Trend    `json:"trend"`
	Price                float64  `json:"price"`
}

// Snapshot is the read-only market data prefetched for one scan. Analyzers
// consult it before falling back to the gateway.
type Snapshot struct {
	Chains map[string]*OptionChain
	// Metrics is keyed by ContractKey.String(); a nil value marks a contract
	// the provider does not list.
	Metrics    map[string]*OptionMetrics
	Conditions map[string]*MarketConditions
	// IVRanks holds nil for symbols whose rank was looked up and unavailable.
	IVRanks map[string]*float64
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Chains:     make(map[string]*OptionChain),
		Metrics:    make(map[string]*OptionMetrics),
		Conditions: make(map[string]*MarketConditions),
		IVRanks:    make(map[string]*float64),
	}
}

// Chain returns the prefetched chain for symbol.
func (s *Snapshot) Chain(symbol string) (*OptionChain, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.Chains[strings.ToUpper(symbol)]
	return c, ok
}

// OptionMetrics returns the preloaded metrics for key.
func (s *Snapshot) OptionMetrics(key ContractKey) (*OptionMetrics, bool) {
	if s == nil {
		return nil, false
	}
	m, ok := s.Metrics[key.String()]
	return m, ok
}

// MarketConditions returns the preloaded conditions for symbol.
func (s *Snapshot) MarketConditions(symbol string) (*MarketConditions, bool) {
	if s == nil {
		return nil, false
	}
	c, ok := s.Conditions[strings.ToUpper(symbol)]
	return c, ok
}

// IVRank returns the preloaded IV rank for symbol. ok is true when the rank
// was looked up, even if it came back unavailable.
func (s *Snapshot) IVRank(symbol string) (rank *float64, ok bool) {
	if s == nil {
		return nil, false
	}
	rank, ok = s.IVRanks[strings.ToUpper(symbol)]
	return rank, ok
}

// IntrinsicValue is the exercise value per share of a contract at stockPrice.
func IntrinsicValue(typ models.OptionType, stockPrice, strike float64) float64 {
	if typ == models.OptionTypeCall {
		return math.Max(0, stockPrice-strike)
	}
	return math.Max(0, strike-stockPrice)
}

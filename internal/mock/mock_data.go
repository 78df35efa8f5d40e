// Package mock provides a synthetic market data gateway for demo and paper
// runs where no broker API key is configured.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/marketdata"
	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/eddiefleurent/portfolio_scanner/internal/util"
)

// chainOffsets are the days-to-expiration of the synthetic chain.
var chainOffsets = []int{14, 28, 42, 63}

type symbolState struct {
	price float64
	ivr   float64 // IV rank (percentile)
	midIV float64 // actual IV level for pricing, in percent
}

// Gateway generates plausible quotes per symbol. Each symbol starts from a
// price derived from its name and then drifts a little on every quote.
type Gateway struct {
	now     func() time.Time
	symbols map[string]*symbolState
	mu      sync.Mutex
}

var _ marketdata.Gateway = (*Gateway)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

func NewGateway() *Gateway {
	return &Gateway{
		now:     time.Now,
		symbols: make(map[string]*symbolState),
	}
}

// SetPrice pins the underlying price of symbol.
func (g *Gateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stateLocked(symbol).price = price
}

func (g *Gateway) stateLocked(symbol string) *symbolState {
	symbol = strings.ToUpper(symbol)
	if s, ok := g.symbols[symbol]; ok {
		return s
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	seed := float64(h.Sum32()%1000) / 1000
	s := &symbolState{
		price: 20 + seed*480,           // 20-500
		ivr:   10 + secureFloat64()*80, // IVR between 10-90
		midIV: 18 + secureFloat64()*40, // MidIV between 18-58%
	}
	g.symbols[symbol] = s
	return s
}

// quote returns the drifted price and IV of symbol.
func (g *Gateway) quote(symbol string) symbolState {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stateLocked(symbol)
	s.price = math.Max(1, s.price+(secureFloat64()-0.5)*s.price*0.002)
	return *s
}

func (g *Gateway) GetOptionMetrics(ctx context.Context, key marketdata.ContractKey) (*marketdata.OptionMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exp, err := time.Parse("2006-01-02", key.Expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid expiration format: %w", err)
	}
	s := g.quote(key.Symbol)
	c := g.contract(key.Symbol, exp, key.Strike, key.Type, s)
	mid := c.Mid()
	intrinsic := marketdata.IntrinsicValue(key.Type, s.price, key.Strike)
	return &marketdata.OptionMetrics{
		ImpliedVolatility: c.ImpliedVolatility,
		Delta:             c.Delta,
		Bid:               c.Bid,
		Ask:               c.Ask,
		Price:             mid,
		UnderlyingPrice:   s.price,
		IntrinsicValue:    intrinsic,
		TimeValue:         math.Max(0, mid-intrinsic),
	}, nil
}

func (g *Gateway) GetOptionChainDetailed(ctx context.Context, symbol string) (*marketdata.OptionChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(symbol)
	s := g.quote(symbol)
	now := g.now().UTC()

	chain := &marketdata.OptionChain{
		FetchedAt:       now,
		Symbol:          symbol,
		UnderlyingPrice: s.price,
	}

	// Generate strikes around current price
	strikeInterval := strikeStep(s.price)
	startStrike := math.Floor(s.price*0.8/strikeInterval) * strikeInterval
	endStrike := s.price * 1.2
	for _, offset := range chainOffsets {
		exp := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
		for strike := startStrike; strike <= endStrike; strike += strikeInterval {
			chain.Contracts = append(chain.Contracts,
				g.contract(symbol, exp, strike, models.OptionTypePut, s),
				g.contract(symbol, exp, strike, models.OptionTypeCall, s))
		}
	}
	return chain, nil
}

func (g *Gateway) GetOptionMarketConditions(ctx context.Context, symbol string) (*marketdata.MarketConditions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := g.quote(symbol)
	return marketdata.Conditions(strings.ToUpper(symbol), syntheticCloses(s.price, s.midIV/100, 120)), nil
}

func (g *Gateway) GetIVRankOrPercentile(ctx context.Context, symbol string) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stateLocked(symbol)
	// Simulate IV rank changes
	s.ivr = math.Max(10, math.Min(90, s.ivr+(secureFloat64()-0.5)*2))
	ivr := s.ivr
	return &ivr, nil
}

// contract prices one option with a simple time-value decay around the money.
func (g *Gateway) contract(symbol string, exp time.Time, strike float64, typ models.OptionType, s symbolState) marketdata.OptionContract {
	years := math.Max(0, exp.Sub(g.now()).Hours()/24/365)
	vol := s.midIV / 100
	spread := s.price * vol * math.Sqrt(years)

	distance := math.Abs(strike - s.price)
	decay := 1.0
	if spread > 0 {
		decay = math.Exp(-distance / spread)
	}
	price := marketdata.IntrinsicValue(typ, s.price, strike) + 0.4*spread*decay
	price = math.Max(0.05, price)

	delta := 0.5 * decay
	if (typ == models.OptionTypeCall && strike < s.price) || (typ == models.OptionTypePut && strike > s.price) {
		delta = 1 - 0.5*decay
	}
	if typ == models.OptionTypePut {
		delta = -delta
	}
	iv := vol

	letter := "C"
	if typ == models.OptionTypePut {
		letter = "P"
	}
	return marketdata.OptionContract{
		Expiration:        exp,
		ImpliedVolatility: &iv,
		Delta:             &delta,
		Symbol:            fmt.Sprintf("%s%s%s%08d", strings.ToUpper(symbol), exp.Format("060102"), letter, int(strike*1000)),
		Type:              typ,
		Strike:            strike,
		Bid:               util.RoundToTick(math.Max(0.01, price-0.05), quoteTick),
		Ask:               util.RoundToTick(price+0.05, quoteTick),
		OpenInterest:      int64(1000 * decay),
	}
}

// quoteTick is the minimum price increment of a synthetic quote
const quoteTick = 0.01

func strikeStep(price float64) float64 {
	switch {
	case price < 50:
		return 1
	case price < 200:
		return 2.5
	default:
		return 5
	}
}

// syntheticCloses walks backwards from last with daily moves scaled to vol.
func syntheticCloses(last, vol float64, n int) []float64 {
	closes := make([]float64, n)
	closes[n-1] = last
	daily := vol / math.Sqrt(252)
	for i := n - 2; i >= 0; i-- {
		closes[i] = closes[i+1] * (1 - (secureFloat64()-0.5)*2*daily)
	}
	return closes
}

package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// chainExpirationLimit bounds how many expirations a detailed chain covers
	chainExpirationLimit = 4
	// chainHorizon bounds how far out a detailed chain looks
	chainHorizon    = 90 * 24 * time.Hour
	historyLookback = 365 * 24 * time.Hour
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierGateway reads market data from the Tradier REST API.
type TradierGateway struct {
	client  *http.Client
	logger  *logrus.Logger
	now     func() time.Time
	apiKey  string
	baseURL string
	sandbox bool
}

// Ensure TradierGateway implements Gateway at compile time.
var _ Gateway = (*TradierGateway)(nil)

// NewTradierGateway creates a Tradier client. An empty baseURL selects the
// production or sandbox endpoint.
func NewTradierGateway(apiKey string, sandbox bool, baseURL string, timeout time.Duration, logger *logrus.Logger) *TradierGateway {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TradierGateway{
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		now:     time.Now,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierGateway) WithHTTPClient(c *http.Client) *TradierGateway {
	if c != nil {
		t.client = c
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

type optionChainResponse struct {
	Options struct {
		Option singleOrArray[tradierOption] `json:"option"`
	} `json:"options"`
}

type tradierOption struct {
	Greeks         *tradierGreeks `json:"greeks,omitempty"`
	Symbol         string         `json:"symbol"`
	OptionType     string         `json:"option_type"`
	ExpirationDate string         `json:"expiration_date"`
	Bid            float64        `json:"bid"`
	Ask            float64        `json:"ask"`
	Last           float64        `json:"last"`
	OpenInterest   int64          `json:"open_interest"`
	Strike         float64        `json:"strike"`
}

type tradierGreeks struct {
	Delta float64 `json:"delta"`
	MidIV float64 `json:"mid_iv"`
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prevclose"`
}

func (q quoteItem) price() float64 {
	switch {
	case q.Last > 0:
		return q.Last
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	default:
		return q.PrevClose
	}
}

type expirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

type historyResponse struct {
	History struct {
		Day singleOrArray[struct {
			Date  string  `json:"date"`
			Close float64 `json:"close"`
		}] `json:"day"`
	} `json:"history"`
}

// ============ Gateway ============

// GetOptionMetrics fetches the chain for the key's expiration and returns the
// matching contract priced against the current underlying quote.
func (t *TradierGateway) GetOptionMetrics(ctx context.Context, key ContractKey) (*OptionMetrics, error) {
	options, err := t.getOptionChain(ctx, key.Symbol, key.Expiration)
	if err != nil {
		return nil, err
	}
	var match *tradierOption
	for i := range options {
		if options[i].OptionType == string(key.Type) && math.Abs(options[i].Strike-key.Strike) <= StrikeMatchEpsilon {
			match = &options[i]
			break
		}
	}
	if match == nil {
		return nil, nil
	}

	quote, err := t.getQuote(ctx, key.Symbol)
	if err != nil {
		return nil, err
	}
	underlying := quote.price()

	mid := (match.Bid + match.Ask) / 2
	price := mid
	if price <= 0 {
		price = match.Last
	}
	intrinsic := IntrinsicValue(key.Type, underlying, key.Strike)
	m := &OptionMetrics{
		Bid:             match.Bid,
		Ask:             match.Ask,
		Price:           price,
		UnderlyingPrice: underlying,
		IntrinsicValue:  intrinsic,
		TimeValue:       math.Max(0, price-intrinsic),
	}
	if g := match.Greeks; g != nil {
		delta := g.Delta
		m.Delta = &delta
		if g.MidIV > 0 {
			iv := g.MidIV
			m.ImpliedVolatility = &iv
		}
	}
	return m, nil
}

// GetOptionChainDetailed returns up to four expirations within 90 days.
func (t *TradierGateway) GetOptionChainDetailed(ctx context.Context, symbol string) (*OptionChain, error) {
	symbol = strings.ToUpper(symbol)
	expirations, err := t.nearTermExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(expirations) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	quote, err := t.getQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	chain := &OptionChain{
		FetchedAt:       t.now(),
		Symbol:          symbol,
		UnderlyingPrice: quote.price(),
	}
	for _, exp := range expirations {
		options, err := t.getOptionChain(ctx, symbol, exp)
		if err != nil {
			return nil, fmt.Errorf("chain %s %s: %w", symbol, exp, err)
		}
		for _, o := range options {
			c, ok := toContract(o)
			if ok {
				chain.Contracts = append(chain.Contracts, c)
			}
		}
	}
	return chain, nil
}

// GetOptionMarketConditions derives RSI, the 50-day average and historical
// volatility from a year of daily closes.
func (t *TradierGateway) GetOptionMarketConditions(ctx context.Context, symbol string) (*MarketConditions, error) {
	symbol = strings.ToUpper(symbol)
	closes, err := t.getDailyCloses(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("%s history: %w", symbol, ErrNoData)
	}
	return Conditions(symbol, closes), nil
}

// GetIVRankOrPercentile ranks the at-the-money implied volatility of the
// nearest expiration within the one-year range of rolling 20-day historical
// volatility. Returns nil when either side is unavailable.
func (t *TradierGateway) GetIVRankOrPercentile(ctx context.Context, symbol string) (*float64, error) {
	symbol = strings.ToUpper(symbol)
	closes, err := t.getDailyCloses(ctx, symbol)
	if err != nil {
		return nil, err
	}
	history := RollingVolatility(closes, hvWindow)
	if len(history) == 0 {
		return nil, nil
	}

	expirations, err := t.nearTermExpirations(ctx, symbol)
	if err != nil || len(expirations) == 0 {
		return nil, err
	}
	options, err := t.getOptionChain(ctx, symbol, expirations[0])
	if err != nil {
		return nil, err
	}
	iv := atmImpliedVolatility(options, closes[len(closes)-1])
	if iv == nil {
		return nil, nil
	}
	rank := CalculateIVR(*iv, history)
	return &rank, nil
}

func atmImpliedVolatility(options []tradierOption, price float64) *float64 {
	bestDiff := math.MaxFloat64
	var sum float64
	var n int
	for _, o := range options {
		if o.Greeks == nil || o.Greeks.MidIV <= 0 {
			continue
		}
		diff := math.Abs(o.Strike - price)
		switch {
		case diff < bestDiff-StrikeMatchEpsilon:
			bestDiff, sum, n = diff, o.Greeks.MidIV, 1
		case math.Abs(diff-bestDiff) <= StrikeMatchEpsilon:
			sum += o.Greeks.MidIV
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func toContract(o tradierOption) (OptionContract, bool) {
	exp, err := time.Parse("2006-01-02", o.ExpirationDate)
	if err != nil {
		return OptionContract{}, false
	}
	typ := models.OptionType(o.OptionType)
	if !typ.Valid() {
		return OptionContract{}, false
	}
	c := OptionContract{
		Expiration:   exp,
		Symbol:       o.Symbol,
		Type:         typ,
		Strike:       o.Strike,
		Bid:          o.Bid,
		Ask:          o.Ask,
		OpenInterest: o.OpenInterest,
	}
	if o.Greeks != nil {
		delta := o.Greeks.Delta
		c.Delta = &delta
		if o.Greeks.MidIV > 0 {
			iv := o.Greeks.MidIV
			c.ImpliedVolatility = &iv
		}
	}
	return c, true
}

// ============ API Methods ============

func (t *TradierGateway) getQuote(ctx context.Context, symbol string) (*quoteItem, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response quotesResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	if len(response.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("quote %s: %w", symbol, ErrNoData)
	}
	first := response.Quotes.Quote[0]
	return &first, nil
}

func (t *TradierGateway) getExpirations(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response expirationsResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	return []string(response.Expirations.Date), nil
}

// nearTermExpirations keeps future expirations inside the chain horizon, sorted
// ascending and capped at chainExpirationLimit.
func (t *TradierGateway) nearTermExpirations(ctx context.Context, symbol string) ([]string, error) {
	all, err := t.getExpirations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	now := t.now().UTC()
	today := now.Format("2006-01-02")
	horizon := now.Add(chainHorizon).Format("2006-01-02")

	var out []string
	for _, d := range all {
		if d >= today && d <= horizon {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	if len(out) > chainExpirationLimit {
		out = out[:chainExpirationLimit]
	}
	return out, nil
}

func (t *TradierGateway) getOptionChain(ctx context.Context, symbol, expiration string) ([]tradierOption, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response optionChainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	return []tradierOption(response.Options.Option), nil
}

func (t *TradierGateway) getDailyCloses(ctx context.Context, symbol string) ([]float64, error) {
	end := t.now().UTC()
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "daily")
	params.Set("start", end.Add(-historyLookback).Format("2006-01-02"))
	params.Set("end", end.Format("2006-01-02"))
	endpoint := t.baseURL + "/markets/history?" + params.Encode()

	var response historyResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, fmt.Errorf("failed to get historical data for %s: %w", symbol, err)
	}
	closes := make([]float64, 0, len(response.History.Day))
	for _, day := range response.History.Day {
		closes = append(closes, day.Close)
	}
	return closes, nil
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierGateway) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "portfolio-scanner/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	if remaining := resp.Header.Get("X-Ratelimit-Available"); remaining != "" && t.sandbox {
		t.logger.WithField("remaining", remaining).Debug("Tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}

package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/portfolio_scanner/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *TradierGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	g := NewTradierGateway("test-key", true, srv.URL+"/", time.Second, logger).WithHTTPClient(srv.Client())
	g.now = func() time.Time { return fixedNow }
	return g
}

const chainJSON = `{"options":{"option":[
 {"symbol":"TSLA260116C00250000","option_type":"call","expiration_date":"2026-01-16","strike":250,"bid":10,"ask":12,"greeks":{"delta":0.55,"mid_iv":0.6}},
 {"symbol":"TSLA260116P00250000","option_type":"put","expiration_date":"2026-01-16","strike":250,"bid":7,"ask":9,"greeks":{"delta":-0.45,"mid_iv":0.62}}
]}}`

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 429, Body: "too many requests"}
	assert.Equal(t, "API error 429: too many requests", err.Error())
}

func TestNewTradierGateway_BaseURLDefaults(t *testing.T) {
	tests := []struct {
		name    string
		sandbox bool
		baseURL string
		want    string
	}{
		{"sandbox default", true, "", "https://sandbox.tradier.com/v1"},
		{"production default", false, "", "https://api.tradier.com/v1"},
		{"custom trimmed", false, "https://example.test/api/", "https://example.test/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewTradierGateway("k", tt.sandbox, tt.baseURL, 0, nil)
			assert.Equal(t, tt.want, g.baseURL)
			assert.Equal(t, 10*time.Second, g.client.Timeout)
		})
	}
}

func TestTradierGateway_GetOptionMetrics(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/markets/options/chains":
			assert.Equal(t, "true", r.URL.Query().Get("greeks"))
			fmt.Fprint(w, chainJSON)
		case "/markets/quotes":
			fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"TSLA","last":255}}}`)
		default:
			http.NotFound(w, r)
		}
	})

	m, err := g.GetOptionMetrics(context.Background(), ContractKey{
		Symbol: "TSLA", Expiration: "2026-01-16", Strike: 250, Type: models.OptionTypeCall,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 10.0, m.Bid)
	assert.Equal(t, 12.0, m.Ask)
	assert.Equal(t, 11.0, m.Price)
	assert.Equal(t, 255.0, m.UnderlyingPrice)
	assert.Equal(t, 5.0, m.IntrinsicValue)
	assert.Equal(t, 6.0, m.TimeValue)
	require.NotNil(t, m.ImpliedVolatility)
	assert.Equal(t, 0.6, *m.ImpliedVolatility)
	require.NotNil(t, m.Delta)
	assert.Equal(t, 0.55, *m.Delta)
}

func TestTradierGateway_GetOptionMetrics_MissingContract(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chainJSON)
	})
	m, err := g.GetOptionMetrics(context.Background(), ContractKey{
		Symbol: "TSLA", Expiration: "2026-01-16", Strike: 300, Type: models.OptionTypeCall,
	})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestTradierGateway_Non200ReturnsAPIError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "slow down")
	})
	_, err := g.GetOptionChainDetailed(context.Background(), "tsla")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Contains(t, apiErr.Body, "retry-after: 3")
}

func TestTradierGateway_GetOptionChainDetailed(t *testing.T) {
	var chainCalls []string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/options/expirations":
			fmt.Fprint(w, `{"expirations":{"date":["2025-12-19","2026-01-16","2026-01-23","2026-01-30","2026-02-20","2026-03-20","2026-06-18"]}}`)
		case "/markets/options/chains":
			exp := r.URL.Query().Get("expiration")
			chainCalls = append(chainCalls, exp)
			fmt.Fprint(w, strings.ReplaceAll(chainJSON, "2026-01-16", exp))
		case "/markets/quotes":
			fmt.Fprint(w, `{"quotes":{"quote":[{"symbol":"TSLA","last":0,"bid":254,"ask":256}]}}`)
		default:
			http.NotFound(w, r)
		}
	})

	chain, err := g.GetOptionChainDetailed(context.Background(), "tsla")
	require.NoError(t, err)
	assert.Equal(t, "TSLA", chain.Symbol)
	assert.Equal(t, 255.0, chain.UnderlyingPrice)
	assert.Equal(t, []string{"2026-01-16", "2026-01-23", "2026-01-30", "2026-02-20"}, chainCalls)
	assert.Len(t, chain.Contracts, 8)

	c := chain.Find("2026-01-23", 250, models.OptionTypePut)
	require.NotNil(t, c)
	assert.Equal(t, 8.0, c.Mid())
}

func TestTradierGateway_GetOptionChainDetailed_NoExpirations(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"expirations":null}`)
	})
	_, err := g.GetOptionChainDetailed(context.Background(), "TSLA")
	assert.ErrorIs(t, err, ErrNoData)
}

func historyJSON(closes []float64) string {
	var b strings.Builder
	b.WriteString(`{"history":{"day":[`)
	day := fixedNow.AddDate(-1, 0, 0)
	for i, c := range closes {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"date":"%s","close":%.4f}`, day.AddDate(0, 0, i).Format("2006-01-02"), c)
	}
	b.WriteString(`]}}`)
	return b.String()
}

func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i) + 2*math.Sin(float64(i))
	}
	return closes
}

func TestTradierGateway_GetOptionMarketConditions(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/history", r.URL.Path)
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		fmt.Fprint(w, historyJSON(risingCloses(120)))
	})

	c, err := g.GetOptionMarketConditions(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", c.Symbol)
	require.NotNil(t, c.SMA50)
	require.NotNil(t, c.RSI)
	require.NotNil(t, c.HistoricalVolatility)
	assert.Equal(t, TrendBullish, c.Trend)
}

func TestTradierGateway_GetOptionMarketConditions_EmptyHistory(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"history":null}`)
	})
	_, err := g.GetOptionMarketConditions(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestTradierGateway_GetIVRankOrPercentile(t *testing.T) {
	closes := risingCloses(120)
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/history":
			fmt.Fprint(w, historyJSON(closes))
		case "/markets/options/expirations":
			fmt.Fprint(w, `{"expirations":{"date":"2026-01-16"}}`)
		case "/markets/options/chains":
			fmt.Fprint(w, chainJSON)
		default:
			http.NotFound(w, r)
		}
	})

	rank, err := g.GetIVRankOrPercentile(context.Background(), "TSLA")
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.GreaterOrEqual(t, *rank, 0.0)
	assert.LessOrEqual(t, *rank, 100.0)
}

func TestTradierGateway_GetIVRankOrPercentile_ShortHistory(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, historyJSON([]float64{100, 101, 102}))
	})
	rank, err := g.GetIVRankOrPercentile(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Nil(t, rank)
}

func TestTradierGateway_ContextCancel(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.GetOptionMarketConditions(ctx, "SPY")
	assert.ErrorIs(t, err, context.Canceled)
}

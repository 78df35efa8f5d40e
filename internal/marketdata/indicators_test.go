package marketdata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateIVR(t *testing.T) {
	tests := []struct {
		name         string
		historicalIV []float64
		currentIV    float64
		expected     float64
	}{
		{"normal range", []float64{10, 15, 20, 25, 30, 35, 40}, 25, 50},
		{"at minimum", []float64{10, 20, 30}, 10, 0},
		{"at maximum", []float64{10, 20, 30}, 30, 100},
		{"no range", []float64{20, 20, 20}, 20, 0},
		{"above range clamps", []float64{10, 20}, 50, 100},
		{"below range clamps", []float64{10, 20}, 5, 0},
		{"empty history", nil, 20, 0},
		{"NaN current", []float64{10, 20}, math.NaN(), 0},
		{"invalid history filtered", []float64{math.NaN(), 10, math.Inf(1), 30}, 20, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateIVR(tt.currentIV, tt.historicalIV)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestRSIAndSMA_InsufficientData(t *testing.T) {
	short := []float64{1, 2, 3}
	assert.Nil(t, RSI(short, 14))
	assert.Nil(t, SMA(short, 50))
	assert.Nil(t, RSI(short, 0))
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	got := SMA(closes, 5)
	require.NotNil(t, got)
	assert.InDelta(t, 3.0, *got, 1e-9)
}

func TestRSI_MonotonicSeries(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(100 + i)
	}
	got := RSI(up, 14)
	require.NotNil(t, got)
	assert.InDelta(t, 100.0, *got, 1e-6)
}

func TestHistoricalVolatility(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 50
	}
	hv := HistoricalVolatility(flat, 20)
	require.NotNil(t, hv)
	assert.InDelta(t, 0.0, *hv, 1e-12)

	assert.Nil(t, HistoricalVolatility(flat[:10], 20))

	alternating := make([]float64, 30)
	for i := range alternating {
		alternating[i] = 100
		if i%2 == 1 {
			alternating[i] = 101
		}
	}
	hv = HistoricalVolatility(alternating, 20)
	require.NotNil(t, hv)
	assert.Greater(t, *hv, 0.1)
}

func TestRollingVolatility(t *testing.T) {
	closes := risingCloses(40)
	series := RollingVolatility(closes, 20)
	assert.Len(t, series, len(closes)-1-20+1)
	assert.Nil(t, RollingVolatility(closes[:5], 20))
}

func TestClassifyTrend(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name  string
		price float64
		sma   *float64
		rsi   *float64
		want  Trend
	}{
		{"bullish", 110, f(100), f(60), TrendBullish},
		{"bearish", 90, f(100), f(40), TrendBearish},
		{"above average but weak rsi", 110, f(100), f(45), TrendNeutral},
		{"missing sma", 110, nil, f(60), TrendNeutral},
		{"missing rsi", 90, f(100), nil, TrendNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTrend(tt.price, tt.sma, tt.rsi))
		})
	}
}

func TestLogReturns_SkipsNonPositive(t *testing.T) {
	got := LogReturns([]float64{100, 0, 110, 121})
	require.Len(t, got, 1)
	assert.InDelta(t, math.Log(1.1), got[0], 1e-12)
}

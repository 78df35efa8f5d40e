package marketdata

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

const (
	tradingDaysPerYear = 252
	rsiPeriod          = 14
	smaPeriod          = 50
	hvWindow           = 20
)

// RSI returns the latest relative strength index, or nil with insufficient data.
func RSI(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period+1 {
		return nil
	}
	values := talib.Rsi(closes, period)
	return last(values)
}

// SMA returns the latest simple moving average, or nil with insufficient data.
func SMA(closes []float64, period int) *float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	values := talib.Sma(closes, period)
	return last(values)
}

func last(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// LogReturns converts a close series into daily log returns, skipping
// non-positive prices.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// HistoricalVolatility is the annualized standard deviation of the last window
// daily log returns, as a decimal (0.25 = 25%).
func HistoricalVolatility(closes []float64, window int) *float64 {
	returns := LogReturns(closes)
	if window < 2 || len(returns) < window {
		return nil
	}
	v := stat.StdDev(returns[len(returns)-window:], nil) * math.Sqrt(tradingDaysPerYear)
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

// RollingVolatility returns the annualized volatility of every window-sized
// slice of daily returns, oldest first.
func RollingVolatility(closes []float64, window int) []float64 {
	returns := LogReturns(closes)
	if window < 2 || len(returns) < window {
		return nil
	}
	out := make([]float64, 0, len(returns)-window+1)
	for end := window; end <= len(returns); end++ {
		out = append(out, stat.StdDev(returns[end-window:end], nil)*math.Sqrt(tradingDaysPerYear))
	}
	return out
}

// ClassifyTrend is bullish above the 50-day average with RSI over 50, bearish
// below it with RSI under 50, neutral otherwise.
func ClassifyTrend(price float64, sma50, rsi *float64) Trend {
	if sma50 == nil || rsi == nil {
		return TrendNeutral
	}
	switch {
	case price > *sma50 && *rsi > 50:
		return TrendBullish
	case price < *sma50 && *rsi < 50:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// Conditions derives market conditions from a daily close series.
func Conditions(symbol string, closes []float64) *MarketConditions {
	if len(closes) == 0 {
		return &MarketConditions{Symbol: symbol, Trend: TrendNeutral}
	}
	price := closes[len(closes)-1]
	rsi := RSI(closes, rsiPeriod)
	sma := SMA(closes, smaPeriod)
	return &MarketConditions{
		Symbol:               symbol,
		Price:                price,
		RSI:                  rsi,
		SMA50:                sma,
		Trend:                ClassifyTrend(price, sma, rsi),
		HistoricalVolatility: HistoricalVolatility(closes, hvWindow),
	}
}

// CalculateIVR calculates Implied Volatility Rank from historical data
func CalculateIVR(currentIV float64, historicalIVs []float64) float64 {
	if math.IsNaN(currentIV) || math.IsInf(currentIV, 0) {
		return 0
	}

	clean := make([]float64, 0, len(historicalIVs))
	for _, v := range historicalIVs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return 0
	}

	minIV, maxIV := clean[0], clean[0]
	for _, iv := range clean {
		minIV = math.Min(minIV, iv)
		maxIV = math.Max(maxIV, iv)
	}

	// IVR = (Current IV - period low) / (period high - period low) * 100
	if maxIV == minIV {
		return 0
	}
	r := ((currentIV - minIV) / (maxIV - minIV)) * 100
	return math.Max(0, math.Min(100, r))
}

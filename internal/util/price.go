// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds x to the given number of decimal places, half away from zero.
// The float is converted through its shortest decimal representation, so
// 1.235 rounds to 1.24 rather than falling victim to binary error.
// NaN and infinities are returned unchanged.
func Round(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	return f
}

// RoundPtr rounds the value behind p, returning nil for nil.
func RoundPtr(p *float64, places int32) *float64 {
	if p == nil {
		return nil
	}
	v := Round(*p, places)
	return &v
}

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.01, 1.2345 becomes 1.23 and 1.235 becomes 1.24.
func RoundToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := decimal.NewFromFloat(math.Abs(tick))
	f, _ := decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).Float64()
	return f
}

// SafeDiv returns num/den, or fallback when den is zero or the result is not finite.
func SafeDiv(num, den, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	r := num / den
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return fallback
	}
	return r
}

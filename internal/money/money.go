// Package money keeps currency arithmetic exact to the cent.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round rounds v half away from zero to two decimals.
func Round(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Add returns a+b rounded to cents, summing in decimal.
func Add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// Percent returns pct percent of v rounded to cents.
func Percent(v float64, pct int64) float64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// Cents converts an amount to minor units for payment providers.
func Cents(v float64) int64 {
	return decimal.NewFromFloat(v).Shift(2).Round(0).IntPart()
}

func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

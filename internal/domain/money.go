package domain

import (
	"math"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// RoundCents rounds a currency amount half away from zero to two places.
// NaN and infinities collapse to 0.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// ClampOverpayment forces an overpayment estimate to be non-negative and finite.
func ClampOverpayment(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// SumCents adds amounts exactly and returns the cent-rounded total.
func SumCents(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.Round(2).InexactFloat64()
}

// FormatUSD renders an amount as $1,234.56.
func FormatUSD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return "$" + humanize.FormatFloat("#,###.##", RoundCents(v))
}

// FormatWhole renders an amount rounded to whole units with separators.
func FormatWhole(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return humanize.FormatFloat("#,###.", v)
}

// FormatCount renders an integer with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

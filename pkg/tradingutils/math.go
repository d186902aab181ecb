package tradingutils

import (
	"github.com/shopspring/decimal"
)

// RoundToStep floors a quantity to the largest multiple of step not
// exceeding it. A result smaller than step is reported as zero (dust).
func RoundToStep(qty, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() || step.IsNegative() {
		return qty
	}
	rounded := qty.Div(step).Floor().Mul(step)
	if rounded.LessThan(step) {
		return decimal.Zero
	}
	return rounded
}

// Notional computes trade value in quote currency.
func Notional(price, qty decimal.Decimal) decimal.Decimal {
	return price.Mul(qty)
}

// PnLPercent computes the percentage gain of currentPrice over entry.
// Returns zero for a zero entry to avoid division blowups on bad data.
func PnLPercent(entry, currentPrice decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
}

// DrawdownPercent computes the percentage drop of currentPrice below the
// high-water mark. Negative while below the mark, zero at or above it.
func DrawdownPercent(highWater, currentPrice decimal.Decimal) decimal.Decimal {
	if highWater.IsZero() {
		return decimal.Zero
	}
	dd := currentPrice.Sub(highWater).Div(highWater).Mul(decimal.NewFromInt(100))
	if dd.IsPositive() {
		return decimal.Zero
	}
	return dd
}

// QuotePrecisionFromStep derives display precision for quote amounts from
// a lot step size, e.g. step 0.001000 -> 3.
func QuotePrecisionFromStep(step decimal.Decimal) int32 {
	return -step.Exponent()
}

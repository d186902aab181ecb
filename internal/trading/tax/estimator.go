// Package tax estimates capital-gains liability on realized profits.
package tax

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// Estimator applies a flat short-term or long-term rate to realized
// profit. Losses carry no liability and never offset earlier gains.
type Estimator struct {
	shortTermRate decimal.Decimal
	longTermRate  decimal.Decimal
	longTermHold  time.Duration
}

// NewEstimator creates an Estimator. Rates are fractions (0.40 means 40%).
func NewEstimator(shortTermRate, longTermRate float64, longTermHold time.Duration) *Estimator {
	return &Estimator{
		shortTermRate: decimal.NewFromFloat(shortTermRate),
		longTermRate:  decimal.NewFromFloat(longTermRate),
		longTermHold:  longTermHold,
	}
}

// Estimate returns the tax owed on a single closed trade. Profit at or
// below zero owes nothing. A holding period strictly under the long-term
// threshold is taxed at the short-term rate; at or above it, the
// long-term rate applies.
func (e *Estimator) Estimate(profit decimal.Decimal, holdingPeriod time.Duration) decimal.Decimal {
	if profit.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	rate := e.shortTermRate
	if holdingPeriod >= e.longTermHold {
		rate = e.longTermRate
	}
	return profit.Mul(rate)
}

// EstimateTrade computes the tax for a trade record from its realized
// PnL and duration.
func (e *Estimator) EstimateTrade(rec core.TradeRecord) decimal.Decimal {
	return e.Estimate(rec.RealizedPnL, time.Duration(rec.DurationSeconds)*time.Second)
}

// Reserve sums the tax over a window of recent trades. The engine holds
// this amount back from new allocations.
func (e *Estimator) Reserve(recent []core.TradeRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range recent {
		total = total.Add(rec.Tax)
	}
	return total
}

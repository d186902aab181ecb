// Package alloc turns free cash plus a ranked candidate list into buy orders.
package alloc

import (
	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// Allocation is one planned market buy.
type Allocation struct {
	Symbol      string
	QuoteAmount decimal.Decimal
}

// Planner splits available cash across ranked candidates. It prefers the
// widest equal split where every slice still clears the venue minimum,
// shrinking the split one candidate at a time, and finally falls back to
// a single full-cash buy.
type Planner struct {
	logger core.ILogger
}

func NewPlanner(logger core.ILogger) *Planner {
	return &Planner{logger: logger.WithField("component", "alloc_planner")}
}

// Plan computes buy allocations for the given free cash. Candidates must
// be in rank order, best first. Constraints are keyed by symbol; a
// missing entry means no minimum applies. The sum of the returned
// amounts never exceeds available. Less than one quote unit is not
// worth spending regardless of venue minimums.
func (p *Planner) Plan(available decimal.Decimal, candidates []core.CandidateScore, constraints map[string]core.TradeConstraints) []Allocation {
	if available.LessThan(decimal.NewFromInt(1)) || len(candidates) == 0 {
		return nil
	}

	// Widest equal split first. Every slice must clear its symbol's
	// minimum notional or the whole split is rejected.
	for n := len(candidates); n >= 1; n-- {
		perSlot := available.Div(decimal.NewFromInt(int64(n)))
		if p.splitAccepted(perSlot, candidates[:n], constraints) {
			out := make([]Allocation, 0, n)
			for _, c := range candidates[:n] {
				out = append(out, Allocation{Symbol: c.Symbol, QuoteAmount: perSlot})
			}
			p.logger.Debug("allocation planned",
				"slots", n, "per_slot", perSlot.String(), "available", available.String())
			return out
		}
	}

	// No split fits. Put everything on the best candidate that accepts it.
	for _, c := range candidates {
		if available.GreaterThanOrEqual(minNotionalFor(c.Symbol, constraints)) {
			p.logger.Debug("allocation fallback to single buy",
				"symbol", c.Symbol, "amount", available.String())
			return []Allocation{{Symbol: c.Symbol, QuoteAmount: available}}
		}
	}

	p.logger.Debug("no allocation possible", "available", available.String())
	return nil
}

func (p *Planner) splitAccepted(perSlot decimal.Decimal, candidates []core.CandidateScore, constraints map[string]core.TradeConstraints) bool {
	for _, c := range candidates {
		if perSlot.LessThan(minNotionalFor(c.Symbol, constraints)) {
			return false
		}
	}
	return true
}

func minNotionalFor(symbol string, constraints map[string]core.TradeConstraints) decimal.Decimal {
	if tc, ok := constraints[symbol]; ok {
		return tc.MinNotional
	}
	return decimal.Zero
}

// Package exits decides when open positions close and executes the sells.
package exits

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/internal/trading/book"
	"autotrader/internal/trading/tax"
	"autotrader/pkg/tradingutils"
)

// ExitReason tags why a position closed.
type ExitReason string

const (
	ReasonTargetProfit ExitReason = "target_profit"
	ReasonStopLoss     ExitReason = "stop_loss"
	ReasonTrailingStop ExitReason = "trailing_stop"
	ReasonTimeLimit    ExitReason = "time_limit"
	ReasonForced       ExitReason = "forced"
)

// Policy decides whether a position should exit at the observed price.
// The rule policy below is the default; alternative strategies plug in
// here.
type Policy interface {
	Evaluate(pos core.Position, price decimal.Decimal, now time.Time) (ExitReason, bool)
}

// RuleParams configure the default rule policy. Percentages are
// positive numbers (a StopLossPct of 0.5 exits at -0.5%).
type RuleParams struct {
	TargetPnLPct    decimal.Decimal
	StopLossPct     decimal.Decimal
	TrailingStopPct decimal.Decimal
	MinProfitToArm  decimal.Decimal
	MaxHold         time.Duration
}

// RulePolicy applies the fixed precedence: target profit, stop loss,
// trailing stop, time limit. The first rule that fires wins.
type RulePolicy struct {
	params RuleParams
}

func NewRulePolicy(params RuleParams) *RulePolicy {
	return &RulePolicy{params: params}
}

func (p *RulePolicy) Evaluate(pos core.Position, price decimal.Decimal, now time.Time) (ExitReason, bool) {
	pnl := pos.PnLPercent(price)

	if pnl.GreaterThanOrEqual(p.params.TargetPnLPct) {
		return ReasonTargetProfit, true
	}
	if pnl.LessThanOrEqual(p.params.StopLossPct.Neg()) {
		return ReasonStopLoss, true
	}

	// Trailing stop arms once the high-water mark has cleared the
	// minimum profit, then fires on the drawdown from that mark.
	if p.params.TrailingStopPct.GreaterThan(decimal.Zero) {
		armed := pos.PnLPercent(pos.MaxPriceSeen).GreaterThanOrEqual(p.params.MinProfitToArm)
		if armed {
			dd := tradingutils.DrawdownPercent(pos.MaxPriceSeen, price)
			if dd.LessThanOrEqual(p.params.TrailingStopPct.Neg()) {
				return ReasonTrailingStop, true
			}
		}
	}

	if p.params.MaxHold > 0 && now.Sub(pos.OpenedAt) >= p.params.MaxHold {
		return ReasonTimeLimit, true
	}
	return "", false
}

// Evaluator sweeps the book each tick, applies the policy, and executes
// closes against the gateway.
type Evaluator struct {
	gateway         core.ExchangeGateway
	book            *book.Book
	policy          Policy
	taxes           *tax.Estimator
	feeRate         decimal.Decimal
	skipNegativeNet bool
	logger          core.ILogger
}

func NewEvaluator(gateway core.ExchangeGateway, b *book.Book, policy Policy, taxes *tax.Estimator, feeRate float64, skipNegativeNet bool, logger core.ILogger) *Evaluator {
	return &Evaluator{
		gateway:         gateway,
		book:            b,
		policy:          policy,
		taxes:           taxes,
		feeRate:         decimal.NewFromFloat(feeRate),
		skipNegativeNet: skipNegativeNet,
		logger:          logger.WithField("component", "exit_evaluator"),
	}
}

// Sweep evaluates every open position once. A symbol whose price cannot
// be fetched or whose sell fails is left in the book for the next tick.
// Returns the trade records of the positions that closed.
func (e *Evaluator) Sweep(ctx context.Context, now time.Time) []core.TradeRecord {
	var closed []core.TradeRecord

	for _, pos := range e.book.Snapshot() {
		price, err := e.gateway.GetPrice(ctx, pos.Symbol)
		if err != nil {
			e.logger.Warn("price unavailable, position skipped this tick",
				"symbol", pos.Symbol, "error", err)
			continue
		}

		e.book.ObservePrice(pos.Symbol, price)
		pos, _ = e.book.Get(pos.Symbol)

		reason, exit := e.policy.Evaluate(pos, price, now)
		if !exit {
			continue
		}

		if e.shouldSkipForNetProfit(pos, price, reason, now) {
			e.logger.Info("exit skipped, net profit after tax not positive",
				"symbol", pos.Symbol, "reason", string(reason))
			continue
		}

		rec, err := e.Close(ctx, pos.Symbol, core.TradeActionSell, now)
		if err != nil {
			e.logger.Warn("sell failed, position retained for retry",
				"symbol", pos.Symbol, "reason", string(reason), "error", err)
			continue
		}
		if rec != nil {
			e.logger.Info("position closed",
				"symbol", rec.Symbol,
				"reason", string(reason),
				"pnl", rec.RealizedPnL.String(),
				"pnl_pct", rec.RealizedPnLPct.StringFixed(2))
			closed = append(closed, *rec)
		}
	}
	return closed
}

// shouldSkipForNetProfit blocks profit-taking exits whose proceeds
// would be eaten by fees and tax. Loss-cutting and time exits are never
// blocked; holding a loser to dodge tax is not a strategy.
func (e *Evaluator) shouldSkipForNetProfit(pos core.Position, price decimal.Decimal, reason ExitReason, now time.Time) bool {
	if !e.skipNegativeNet {
		return false
	}
	if reason != ReasonTargetProfit && reason != ReasonTrailingStop {
		return false
	}

	gross := price.Sub(pos.EntryPrice).Mul(pos.Quantity)
	fees := price.Mul(pos.Quantity).Mul(e.feeRate)
	taxDue := e.taxes.Estimate(gross, now.Sub(pos.OpenedAt))
	return gross.Sub(fees).Sub(taxDue).LessThanOrEqual(decimal.Zero)
}

// Close sells the full position at market. Quantities that round to
// zero against the step size are dust: the position is dropped with no
// trade record. A failed sell keeps the position in the book and
// returns the error.
func (e *Evaluator) Close(ctx context.Context, symbol string, action core.TradeAction, now time.Time) (*core.TradeRecord, error) {
	pos, ok := e.book.Get(symbol)
	if !ok {
		return nil, nil
	}

	qty := pos.Quantity
	tc, err := e.gateway.GetTradeConstraints(ctx, symbol)
	if err == nil {
		qty = tradingutils.RoundToStep(pos.Quantity, tc.StepSize)
	}
	if qty.IsZero() {
		e.book.Drop(symbol)
		e.logger.Info("dust position dropped", "symbol", symbol, "qty", pos.Quantity.String())
		return nil, nil
	}

	fill, err := e.gateway.MarketSell(ctx, symbol, qty)
	if err != nil {
		return nil, err
	}

	closedPos, err := e.book.Close(symbol)
	if err != nil {
		return nil, err
	}

	// Realized PnL and the tax base are price moves only. Fees are
	// carried in their own column.
	realized := fill.FilledPrice.Sub(closedPos.EntryPrice).Mul(qty)
	duration := now.Sub(closedPos.OpenedAt)

	rec := core.TradeRecord{
		Symbol:          symbol,
		Action:          action,
		EntryPrice:      closedPos.EntryPrice,
		ExitPrice:       fill.FilledPrice,
		Quantity:        qty,
		OpenedAt:        closedPos.OpenedAt,
		ClosedAt:        now,
		Fees:            fill.Fee,
		Tax:             e.taxes.Estimate(realized, duration),
		RealizedPnL:     realized,
		RealizedPnLPct:  closedPos.PnLPercent(fill.FilledPrice),
		DurationSeconds: int64(duration.Seconds()),
	}
	return &rec, nil
}

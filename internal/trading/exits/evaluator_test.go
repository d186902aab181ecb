package exits

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/internal/mock"
	"autotrader/internal/trading/book"
	"autotrader/internal/trading/tax"
	apperrors "autotrader/pkg/errors"
	"autotrader/pkg/logging"
)

type fixture struct {
	ex   *mock.Exchange
	book *book.Book
	eval *Evaluator
}

func defaultParams() RuleParams {
	return RuleParams{
		TargetPnLPct:    decimal.NewFromInt(1),
		StopLossPct:     decimal.RequireFromString("0.5"),
		TrailingStopPct: decimal.RequireFromString("0.8"),
		MinProfitToArm:  decimal.NewFromInt(1),
		MaxHold:         time.Hour,
	}
}

func newFixture(t *testing.T, params RuleParams, feeRate float64, skipNegativeNet bool) *fixture {
	t.Helper()
	ex := mock.NewExchange("USDC")
	ex.FeeRate = decimal.NewFromFloat(feeRate)
	b := book.New()
	taxes := tax.NewEstimator(0.40, 0.25, 24*time.Hour)
	eval := NewEvaluator(ex, b, NewRulePolicy(params), taxes, feeRate, skipNegativeNet, logging.NopLogger{})
	return &fixture{ex: ex, book: b, eval: eval}
}

// open seeds a position in both the book and the mock exchange balances.
func (f *fixture) open(t *testing.T, symbol string, entry, qty string, openedAt time.Time) {
	t.Helper()
	entryPrice := decimal.RequireFromString(entry)
	quantity := decimal.RequireFromString(qty)
	require.NoError(t, f.book.Open(symbol, entryPrice, quantity, openedAt))
	f.ex.SetPrice(symbol, entryPrice)
	base := symbol[:len(symbol)-4]
	f.ex.Balances[base] = quantity
}

func TestSweepTargetProfitExit(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "2", now.Add(-10*time.Minute))
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("101"))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)

	rec := closed[0]
	assert.Equal(t, core.TradeActionSell, rec.Action)
	assert.True(t, rec.RealizedPnL.Equal(decimal.NewFromInt(2)), "pnl %s", rec.RealizedPnL)
	// Short-term rate on a 10 minute hold: 2 * 0.40
	assert.True(t, rec.Tax.Equal(decimal.RequireFromString("0.8")), "tax %s", rec.Tax)
	assert.Equal(t, 0, f.book.Len())
}

func TestSweepFeesStayOutOfPnLAndTax(t *testing.T) {
	f := newFixture(t, defaultParams(), 0.001, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "2", now.Add(-10*time.Minute))
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("101"))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)

	rec := closed[0]
	// PnL and the tax base are the price move alone; the commission
	// lands in Fees.
	assert.True(t, rec.RealizedPnL.Equal(decimal.NewFromInt(2)), "pnl %s", rec.RealizedPnL)
	assert.True(t, rec.Tax.Equal(decimal.RequireFromString("0.8")), "tax %s", rec.Tax)
	assert.True(t, rec.Fees.Equal(decimal.RequireFromString("0.202")), "fees %s", rec.Fees)
}

func TestSweepStopLossExit(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("99.4"))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.LessThan(decimal.Zero))
	assert.True(t, closed[0].Tax.IsZero(), "losses owe no tax")
}

func TestEvaluateTargetBeatsStopLoss(t *testing.T) {
	// A negative target makes both rules fire on the same price. The
	// target must win.
	params := defaultParams()
	params.TargetPnLPct = decimal.NewFromInt(-5)
	policy := NewRulePolicy(params)

	pos := core.Position{
		Symbol:       "ETHUSDC",
		EntryPrice:   decimal.NewFromInt(100),
		Quantity:     decimal.NewFromInt(1),
		MaxPriceSeen: decimal.NewFromInt(100),
		OpenedAt:     time.Now(),
	}
	reason, exit := policy.Evaluate(pos, decimal.NewFromInt(99), time.Now())
	require.True(t, exit)
	assert.Equal(t, ReasonTargetProfit, reason)
}

func TestSweepTrailingStop(t *testing.T) {
	params := defaultParams()
	params.TargetPnLPct = decimal.NewFromInt(5) // keep target out of the way
	f := newFixture(t, params, 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)

	// Run up to 103: arms the trailing stop, no exit yet.
	f.ex.SetPrice("ETHUSDC", decimal.NewFromInt(103))
	assert.Empty(t, f.eval.Sweep(context.Background(), now))

	// Pull back to 102.1: -0.87% from the high-water mark, past -0.8%.
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("102.1"))
	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].RealizedPnL.GreaterThan(decimal.Zero), "trailing exit locks in profit")
}

func TestSweepTrailingNotArmedBelowMinProfit(t *testing.T) {
	params := defaultParams()
	params.TargetPnLPct = decimal.NewFromInt(5)
	f := newFixture(t, params, 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)

	// Peak at +0.5%, below the 1% arming threshold, then give most back.
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("100.5"))
	assert.Empty(t, f.eval.Sweep(context.Background(), now))
	f.ex.SetPrice("ETHUSDC", decimal.RequireFromString("99.6"))
	assert.Empty(t, f.eval.Sweep(context.Background(), now), "not armed and above stop loss")
	assert.Equal(t, 1, f.book.Len())
}

func TestSweepTimeLimit(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now.Add(-2*time.Hour))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(7200), closed[0].DurationSeconds)
}

func TestSweepDustDroppedWithoutRecord(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "0.00004", now.Add(-2*time.Hour))
	f.ex.Constraints["ETHUSDC"] = core.TradeConstraints{StepSize: decimal.RequireFromString("0.0001")}

	closed := f.eval.Sweep(context.Background(), now)
	assert.Empty(t, closed, "dust produces no trade record")
	assert.Equal(t, 0, f.book.Len(), "dust position is removed")
	assert.Empty(t, f.ex.SellsFor("ETHUSDC"), "no sell is attempted")
}

func TestSweepFailedSellKeepsPosition(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	f.ex.SetPrice("ETHUSDC", decimal.NewFromInt(102))
	f.ex.SellErr["ETHUSDC"] = apperrors.ErrNetwork

	assert.Empty(t, f.eval.Sweep(context.Background(), now))
	assert.Equal(t, 1, f.book.Len(), "position retained for retry")

	// Next tick the venue recovers and the exit goes through.
	delete(f.ex.SellErr, "ETHUSDC")
	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
}

func TestSweepNetProfitGateSkipsSell(t *testing.T) {
	// 1% fee eats the whole 1% gain: gross 1, fees 1.01, net negative.
	f := newFixture(t, defaultParams(), 0.01, true)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	f.ex.SetPrice("ETHUSDC", decimal.NewFromInt(101))

	assert.Empty(t, f.eval.Sweep(context.Background(), now))
	assert.Equal(t, 1, f.book.Len(), "unprofitable-after-costs sell is skipped")
}

func TestSweepNetProfitGateDisabled(t *testing.T) {
	f := newFixture(t, defaultParams(), 0.01, false)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	f.ex.SetPrice("ETHUSDC", decimal.NewFromInt(101))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
}

func TestSweepNetProfitGateNeverBlocksStopLoss(t *testing.T) {
	f := newFixture(t, defaultParams(), 0.01, true)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	f.ex.SetPrice("ETHUSDC", decimal.NewFromInt(99))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1, "loss cutting is never gated")
}

func TestSweepPriceErrorSkipsSymbolOnly(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	now := time.Now()
	f.open(t, "AUSDC", "100", "1", now)
	f.open(t, "BUSDC", "100", "1", now)
	f.ex.PriceErr["AUSDC"] = apperrors.ErrPriceUnavailable
	f.ex.SetPrice("BUSDC", decimal.NewFromInt(102))

	closed := f.eval.Sweep(context.Background(), now)
	require.Len(t, closed, 1)
	assert.Equal(t, "BUSDC", closed[0].Symbol)
	assert.True(t, f.book.Has("AUSDC"))
}

func TestCloseForcedIgnoresPolicy(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, true)
	now := time.Now()
	f.open(t, "ETHUSDC", "100", "1", now)
	// Flat price: no rule would fire and the net gate would block a
	// profit exit, but a forced close goes through regardless.
	rec, err := f.eval.Close(context.Background(), "ETHUSDC", core.TradeActionLiquidate, now)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, core.TradeActionLiquidate, rec.Action)
	assert.Equal(t, 0, f.book.Len())
}

func TestCloseUnknownSymbolIsNoop(t *testing.T) {
	f := newFixture(t, defaultParams(), 0, false)
	rec, err := f.eval.Close(context.Background(), "NOPEUSDC", core.TradeActionSell, time.Now())
	require.NoError(t, err)
	assert.Nil(t, rec)
}

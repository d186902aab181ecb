package exchange

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
	"autotrader/pkg/logging"
)

// flakyGateway fails GetPrice a set number of times, then succeeds.
// Order calls count invocations to prove they are never retried.
type flakyGateway struct {
	priceFailures int32
	buyCalls      int32
	buyErr        error
}

func (f *flakyGateway) GetPrice(context.Context, string) (decimal.Decimal, error) {
	if atomic.AddInt32(&f.priceFailures, -1) >= 0 {
		return decimal.Zero, apperrors.ErrNetwork
	}
	return decimal.NewFromInt(100), nil
}

func (f *flakyGateway) GetTradeConstraints(context.Context, string) (core.TradeConstraints, error) {
	return core.TradeConstraints{}, nil
}

func (f *flakyGateway) MarketBuy(context.Context, string, decimal.Decimal) (core.BuyFill, error) {
	atomic.AddInt32(&f.buyCalls, 1)
	if f.buyErr != nil {
		return core.BuyFill{}, f.buyErr
	}
	return core.BuyFill{FilledPrice: decimal.NewFromInt(100), FilledQty: decimal.NewFromInt(1)}, nil
}

func (f *flakyGateway) MarketSell(context.Context, string, decimal.Decimal) (core.SellFill, error) {
	return core.SellFill{}, nil
}

func (f *flakyGateway) GetAccountBalances(context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func (f *flakyGateway) GetTickers(context.Context) ([]core.Ticker, error) {
	return nil, nil
}

func (f *flakyGateway) GetKlines(context.Context, string, string, int) ([]core.Candle, error) {
	return nil, nil
}

func TestReadRetriesTransientFailures(t *testing.T) {
	inner := &flakyGateway{priceFailures: 2}
	r := NewResilient(inner, logging.NopLogger{})

	price, err := r.GetPrice(context.Background(), "ETHUSDC")
	require.NoError(t, err, "two transient failures are within the retry budget")
	assert.True(t, price.Equal(decimal.NewFromInt(100)))
}

func TestReadGivesUpAfterRetryBudget(t *testing.T) {
	inner := &flakyGateway{priceFailures: 10}
	r := NewResilient(inner, logging.NopLogger{})

	_, err := r.GetPrice(context.Background(), "ETHUSDC")
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestOrdersAreNeverRetried(t *testing.T) {
	inner := &flakyGateway{buyErr: apperrors.ErrNetwork}
	r := NewResilient(inner, logging.NopLogger{})

	_, err := r.MarketBuy(context.Background(), "ETHUSDC", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.buyCalls), "an order must go out at most once")
}

func TestOrderPassThroughOnSuccess(t *testing.T) {
	inner := &flakyGateway{}
	r := NewResilient(inner, logging.NopLogger{})

	fill, err := r.MarketBuy(context.Background(), "ETHUSDC", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, fill.FilledQty.Equal(decimal.NewFromInt(1)))
}

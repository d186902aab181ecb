// Package exchange decorates a gateway with retries, a circuit breaker
// and rate limiting.
package exchange

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
)

// Resilient wraps a gateway. Read calls retry on transient failures
// behind a circuit breaker; order calls are rate limited but never
// retried, since a timed-out order may still have filled.
type Resilient struct {
	inner        core.ExchangeGateway
	pipeline     failsafe.Executor[any]
	readLimiter  *rate.Limiter
	orderLimiter *rate.Limiter
	logger       core.ILogger
}

// NewResilient builds the decorator with the default policies: three
// retries with backoff, breaker opening after 5 failures in 10 calls.
func NewResilient(inner core.ExchangeGateway, logger core.ILogger) *Resilient {
	retryPolicy := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && apperrors.IsTransient(err)
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && apperrors.IsTransient(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	return &Resilient{
		inner:        inner,
		pipeline:     failsafe.With[any](retryPolicy, breaker),
		readLimiter:  rate.NewLimiter(20, 40),
		orderLimiter: rate.NewLimiter(5, 10),
		logger:       logger.WithField("component", "resilient_gateway"),
	}
}

func read[T any](ctx context.Context, r *Resilient, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := r.readLimiter.Wait(ctx); err != nil {
		return zero, err
	}
	result, err := r.pipeline.GetWithExecution(func(_ failsafe.Execution[any]) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

func (r *Resilient) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return read(ctx, r, func(ctx context.Context) (decimal.Decimal, error) {
		return r.inner.GetPrice(ctx, symbol)
	})
}

func (r *Resilient) GetTradeConstraints(ctx context.Context, symbol string) (core.TradeConstraints, error) {
	return read(ctx, r, func(ctx context.Context) (core.TradeConstraints, error) {
		return r.inner.GetTradeConstraints(ctx, symbol)
	})
}

func (r *Resilient) GetAccountBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return read(ctx, r, func(ctx context.Context) (map[string]decimal.Decimal, error) {
		return r.inner.GetAccountBalances(ctx)
	})
}

func (r *Resilient) GetTickers(ctx context.Context) ([]core.Ticker, error) {
	return read(ctx, r, func(ctx context.Context) ([]core.Ticker, error) {
		return r.inner.GetTickers(ctx)
	})
}

func (r *Resilient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.Candle, error) {
	return read(ctx, r, func(ctx context.Context) ([]core.Candle, error) {
		return r.inner.GetKlines(ctx, symbol, interval, limit)
	})
}

// MarketBuy is rate limited but deliberately not retried.
func (r *Resilient) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (core.BuyFill, error) {
	if err := r.orderLimiter.Wait(ctx); err != nil {
		return core.BuyFill{}, err
	}
	return r.inner.MarketBuy(ctx, symbol, quoteAmount)
}

// MarketSell is rate limited but deliberately not retried.
func (r *Resilient) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (core.SellFill, error) {
	if err := r.orderLimiter.Wait(ctx); err != nil {
		return core.SellFill{}, err
	}
	return r.inner.MarketSell(ctx, symbol, qty)
}

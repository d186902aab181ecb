// Package mock provides a deterministic in-memory exchange for tests
// and dry runs.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
	"autotrader/pkg/tradingutils"
)

// Fill records one executed mock order.
type Fill struct {
	Symbol string
	Side   string
	Price  decimal.Decimal
	Qty    decimal.Decimal
	Quote  decimal.Decimal
}

// Exchange implements core.ExchangeGateway against fixture data. Orders
// fill instantly at the posted price. Error injection is per symbol so
// a test can fail one sell while the rest of the tick proceeds.
type Exchange struct {
	mu sync.Mutex

	QuoteAsset  string
	FeeRate     decimal.Decimal
	Prices      map[string]decimal.Decimal
	Constraints map[string]core.TradeConstraints
	Balances    map[string]decimal.Decimal
	Tickers     []core.Ticker
	Klines      map[string][]core.Candle

	PriceErr   map[string]error
	BuyErr     map[string]error
	SellErr    map[string]error
	TickersErr error
	KlinesErr  map[string]error

	Fills []Fill
}

// NewExchange creates an empty mock exchange quoted in the given asset.
func NewExchange(quoteAsset string) *Exchange {
	return &Exchange{
		QuoteAsset:  quoteAsset,
		FeeRate:     decimal.RequireFromString("0.001"),
		Prices:      make(map[string]decimal.Decimal),
		Constraints: make(map[string]core.TradeConstraints),
		Balances:    make(map[string]decimal.Decimal),
		Klines:      make(map[string][]core.Candle),
		PriceErr:    make(map[string]error),
		BuyErr:      make(map[string]error),
		SellErr:     make(map[string]error),
		KlinesErr:   make(map[string]error),
	}
}

// SetPrice posts a price and mirrors it into the ticker list.
func (e *Exchange) SetPrice(symbol string, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Prices[symbol] = price
	for i := range e.Tickers {
		if e.Tickers[i].Symbol == symbol {
			e.Tickers[i].LastPrice = price
			return
		}
	}
}

func (e *Exchange) GetPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.PriceErr[symbol]; err != nil {
		return decimal.Zero, err
	}
	price, ok := e.Prices[symbol]
	if !ok {
		return decimal.Zero, apperrors.ErrPriceUnavailable
	}
	return price, nil
}

func (e *Exchange) GetTradeConstraints(_ context.Context, symbol string) (core.TradeConstraints, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tc, ok := e.Constraints[symbol]; ok {
		return tc, nil
	}
	return core.TradeConstraints{
		StepSize:    decimal.RequireFromString("0.00000001"),
		MinNotional: decimal.Zero,
	}, nil
}

func (e *Exchange) MarketBuy(_ context.Context, symbol string, quoteAmount decimal.Decimal) (core.BuyFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.BuyErr[symbol]; err != nil {
		return core.BuyFill{}, err
	}
	price, ok := e.Prices[symbol]
	if !ok || price.IsZero() {
		return core.BuyFill{}, apperrors.ErrPriceUnavailable
	}
	if e.Balances[e.QuoteAsset].LessThan(quoteAmount) {
		return core.BuyFill{}, apperrors.ErrInsufficientFunds
	}

	qty := quoteAmount.Div(price)
	if tc, ok := e.Constraints[symbol]; ok {
		qty = tradingutils.RoundToStep(qty, tc.StepSize)
		if qty.IsZero() || quoteAmount.LessThan(tc.MinNotional) {
			return core.BuyFill{}, apperrors.ErrBelowMinNotional
		}
	}

	base := strings.TrimSuffix(symbol, e.QuoteAsset)
	e.Balances[e.QuoteAsset] = e.Balances[e.QuoteAsset].Sub(quoteAmount)
	e.Balances[base] = e.Balances[base].Add(qty)
	e.Fills = append(e.Fills, Fill{Symbol: symbol, Side: "buy", Price: price, Qty: qty, Quote: quoteAmount})

	return core.BuyFill{FilledPrice: price, FilledQty: qty}, nil
}

func (e *Exchange) MarketSell(_ context.Context, symbol string, qty decimal.Decimal) (core.SellFill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.SellErr[symbol]; err != nil {
		return core.SellFill{}, err
	}
	price, ok := e.Prices[symbol]
	if !ok || price.IsZero() {
		return core.SellFill{}, apperrors.ErrPriceUnavailable
	}

	base := strings.TrimSuffix(symbol, e.QuoteAsset)
	if e.Balances[base].LessThan(qty) {
		return core.SellFill{}, apperrors.ErrInsufficientFunds
	}

	proceeds := price.Mul(qty)
	fee := proceeds.Mul(e.FeeRate)
	e.Balances[base] = e.Balances[base].Sub(qty)
	e.Balances[e.QuoteAsset] = e.Balances[e.QuoteAsset].Add(proceeds.Sub(fee))
	e.Fills = append(e.Fills, Fill{Symbol: symbol, Side: "sell", Price: price, Qty: qty, Quote: proceeds})

	return core.SellFill{FilledPrice: price, Fee: fee}, nil
}

func (e *Exchange) GetAccountBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(e.Balances))
	for asset, bal := range e.Balances {
		out[asset] = bal
	}
	return out, nil
}

func (e *Exchange) GetTickers(_ context.Context) ([]core.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TickersErr != nil {
		return nil, e.TickersErr
	}
	out := make([]core.Ticker, len(e.Tickers))
	copy(out, e.Tickers)
	return out, nil
}

func (e *Exchange) GetKlines(_ context.Context, symbol, _ string, limit int) ([]core.Candle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.KlinesErr[symbol]; err != nil {
		return nil, err
	}
	candles := e.Klines[symbol]
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]core.Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// SellsFor returns the sell fills recorded for a symbol.
func (e *Exchange) SellsFor(symbol string) []Fill {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Fill
	for _, f := range e.Fills {
		if f.Symbol == symbol && f.Side == "sell" {
			out = append(out, f)
		}
	}
	return out
}

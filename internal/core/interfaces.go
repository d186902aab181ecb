// Package core defines the shared types and interfaces of the trading engine.
package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExchangeGateway is the narrow interface to the external exchange. All
// calls are blocking I/O with caller-supplied timeouts; errors abort only
// the current symbol's operation, never the whole tick.
type ExchangeGateway interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetTradeConstraints(ctx context.Context, symbol string) (TradeConstraints, error)
	MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (BuyFill, error)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (SellFill, error)
	GetAccountBalances(ctx context.Context) (map[string]decimal.Decimal, error)

	// Market data for ranking and the risk gate.
	GetTickers(ctx context.Context) ([]Ticker, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}

// StateStore persists the full BotState snapshot at the end of a tick.
type StateStore interface {
	SaveState(ctx context.Context, state *BotState) error
	LoadState(ctx context.Context) (*BotState, error)
	Close() error
}

// Ledger is the append-only trade log.
type Ledger interface {
	Append(record TradeRecord) error
	Tail(n int) []TradeRecord
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

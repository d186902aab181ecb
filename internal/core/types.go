package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one open holding. Exactly one per symbol exists in the book.
type Position struct {
	Symbol       string          `json:"symbol"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	Quantity     decimal.Decimal `json:"quantity"`
	OpenedAt     time.Time       `json:"opened_at"`
	MaxPriceSeen decimal.Decimal `json:"max_price_seen"`
}

// PnLPercent returns the percentage gain of price over the entry price.
func (p Position) PnLPercent(price decimal.Decimal) decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// TradeAction tags why a TradeRecord was created.
type TradeAction string

const (
	TradeActionSell      TradeAction = "sell"
	TradeActionRotate    TradeAction = "rotate"
	TradeActionLiquidate TradeAction = "liquidate"
)

// TradeRecord is an immutable ledger entry, created exactly once per close.
type TradeRecord struct {
	Symbol          string          `json:"symbol"`
	Action          TradeAction     `json:"action"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	Quantity        decimal.Decimal `json:"quantity"`
	OpenedAt        time.Time       `json:"opened_at"`
	ClosedAt        time.Time       `json:"closed_at"`
	Fees            decimal.Decimal `json:"fees"`
	Tax             decimal.Decimal `json:"tax"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	RealizedPnLPct  decimal.Decimal `json:"realized_pnl_pct"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// CandidateScore is the ephemeral output of one ranking pass.
type CandidateScore struct {
	Symbol        string
	MomentumScore decimal.Decimal
	Change24hPct  decimal.Decimal
	QuoteVolume   decimal.Decimal
	MarketCap     decimal.Decimal
	Volatility    decimal.Decimal
}

// ActionType identifies an operator command.
type ActionType string

const (
	ActionRotate       ActionType = "rotate"
	ActionInvest       ActionType = "invest"
	ActionLiquidateAll ActionType = "liquidate_all"
)

// Action is one pending operator command in the durable queue.
type Action struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
}

// BotState is the persisted snapshot written at the end of every tick.
type BotState struct {
	Cash           decimal.Decimal `json:"cash"`
	Positions      []Position      `json:"positions"`
	PendingActions []Action        `json:"pending_actions"`
	RecentTrades   []TradeRecord   `json:"recent_trades"`
	LastReport     []string        `json:"last_report"`
	Version        int64           `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TradeConstraints are the venue's trade-size rules for one instrument.
type TradeConstraints struct {
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// BuyFill is the result of a successful market buy.
type BuyFill struct {
	FilledPrice decimal.Decimal
	FilledQty   decimal.Decimal
}

// SellFill is the result of a successful market sell.
type SellFill struct {
	FilledPrice decimal.Decimal
	Fee         decimal.Decimal
}

// Ticker is one instrument's 24h market summary.
type Ticker struct {
	Symbol       string
	LastPrice    decimal.Decimal
	Change24hPct decimal.Decimal
	QuoteVolume  decimal.Decimal
}

// Candle is one kline used for momentum lookbacks.
type Candle struct {
	OpenTime int64
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

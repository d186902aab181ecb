// Package binance implements the exchange gateway against Binance spot.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
)

// constraintsTTL bounds how long cached exchange-info filters are
// trusted. Binance changes them rarely.
const constraintsTTL = time.Hour

// Gateway implements core.ExchangeGateway using the official spot API.
type Gateway struct {
	client *binance.Client
	logger core.ILogger

	mu          sync.RWMutex
	constraints map[string]core.TradeConstraints
	fetchedAt   time.Time
}

// NewGateway creates a gateway. An empty baseURL uses the production
// endpoint; point it at the testnet for paper trading.
func NewGateway(apiKey, secretKey, baseURL string, logger core.ILogger) *Gateway {
	client := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &Gateway{
		client:      client,
		logger:      logger.WithField("component", "binance_gateway"),
		constraints: make(map[string]core.TradeConstraints),
	}
}

func (g *Gateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, mapError(err)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", apperrors.ErrPriceUnavailable, symbol)
	}
	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed price for %s: %w", symbol, err)
	}
	return price, nil
}

func (g *Gateway) GetTradeConstraints(ctx context.Context, symbol string) (core.TradeConstraints, error) {
	g.mu.RLock()
	tc, ok := g.constraints[symbol]
	fresh := time.Since(g.fetchedAt) < constraintsTTL
	g.mu.RUnlock()
	if ok && fresh {
		return tc, nil
	}

	if err := g.refreshExchangeInfo(ctx); err != nil {
		if ok {
			// Stale beats nothing.
			return tc, nil
		}
		return core.TradeConstraints{}, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	tc, ok = g.constraints[symbol]
	if !ok {
		return core.TradeConstraints{}, fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, symbol)
	}
	return tc, nil
}

func (g *Gateway) refreshExchangeInfo(ctx context.Context) error {
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return mapError(err)
	}

	fresh := make(map[string]core.TradeConstraints, len(info.Symbols))
	for _, s := range info.Symbols {
		tc := core.TradeConstraints{}
		if lot := s.LotSizeFilter(); lot != nil {
			tc.StepSize = mustDecimal(lot.StepSize)
			tc.MinQty = mustDecimal(lot.MinQuantity)
		}
		if notional := s.NotionalFilter(); notional != nil {
			tc.MinNotional = mustDecimal(notional.MinNotional)
		}
		fresh[s.Symbol] = tc
	}

	g.mu.Lock()
	g.constraints = fresh
	g.fetchedAt = time.Now()
	g.mu.Unlock()
	g.logger.Debug("exchange info refreshed", "symbols", len(fresh))
	return nil
}

func (g *Gateway) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (core.BuyFill, error) {
	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.String()).
		NewClientOrderID("at-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return core.BuyFill{}, mapError(err)
	}

	qty := mustDecimal(resp.ExecutedQuantity)
	spent := mustDecimal(resp.CummulativeQuoteQuantity)
	if qty.IsZero() {
		return core.BuyFill{}, fmt.Errorf("%w: buy filled zero quantity", apperrors.ErrOrderRejected)
	}
	return core.BuyFill{
		FilledPrice: spent.Div(qty),
		FilledQty:   qty,
	}, nil
}

func (g *Gateway) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (core.SellFill, error) {
	resp, err := g.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID("at-" + uuid.NewString()).
		Do(ctx)
	if err != nil {
		return core.SellFill{}, mapError(err)
	}

	executed := mustDecimal(resp.ExecutedQuantity)
	proceeds := mustDecimal(resp.CummulativeQuoteQuantity)
	if executed.IsZero() {
		return core.SellFill{}, fmt.Errorf("%w: sell filled zero quantity", apperrors.ErrOrderRejected)
	}

	// Commissions paid in the quote asset reduce proceeds directly.
	// Commissions in other assets (base, BNB) surface later as balance
	// drift and are picked up by reconciliation.
	fee := decimal.Zero
	quoteAsset := quoteAssetOf(symbol)
	for _, f := range resp.Fills {
		if f.CommissionAsset == quoteAsset {
			fee = fee.Add(mustDecimal(f.Commission))
		}
	}

	return core.SellFill{
		FilledPrice: proceeds.Div(executed),
		Fee:         fee,
	}, nil
}

func (g *Gateway) GetAccountBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	out := make(map[string]decimal.Decimal)
	for _, b := range account.Balances {
		free := mustDecimal(b.Free)
		if free.GreaterThan(decimal.Zero) {
			out[b.Asset] = free
		}
	}
	return out, nil
}

func (g *Gateway) GetTickers(ctx context.Context) ([]core.Ticker, error) {
	stats, err := g.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]core.Ticker, 0, len(stats))
	for _, s := range stats {
		out = append(out, core.Ticker{
			Symbol:       s.Symbol,
			LastPrice:    mustDecimal(s.LastPrice),
			Change24hPct: mustDecimal(s.PriceChangePercent),
			QuoteVolume:  mustDecimal(s.QuoteVolume),
		})
	}
	return out, nil
}

func (g *Gateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]core.Candle, error) {
	klines, err := g.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]core.Candle, 0, len(klines))
	for _, k := range klines {
		out = append(out, core.Candle{
			OpenTime: k.OpenTime,
			Open:     mustDecimal(k.Open),
			High:     mustDecimal(k.High),
			Low:      mustDecimal(k.Low),
			Close:    mustDecimal(k.Close),
			Volume:   mustDecimal(k.Volume),
		})
	}
	return out, nil
}

// mapError translates Binance API error codes into the sentinel errors
// the rest of the engine branches on.
func mapError(err error) error {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)
	}
	switch apiErr.Code {
	case -1003, -1015:
		return fmt.Errorf("%w: %s", apperrors.ErrRateLimitExceeded, apiErr.Message)
	case -2010:
		if strings.Contains(strings.ToLower(apiErr.Message), "insufficient") {
			return fmt.Errorf("%w: %s", apperrors.ErrInsufficientFunds, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", apperrors.ErrOrderRejected, apiErr.Message)
	case -1013, -1111:
		return fmt.Errorf("%w: %s", apperrors.ErrBelowMinNotional, apiErr.Message)
	case -1121:
		return fmt.Errorf("%w: %s", apperrors.ErrInvalidSymbol, apiErr.Message)
	}
	return err
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// quoteAssetOf guesses the quote asset from the symbol suffix. Binance
// spot symbols are concatenated without a separator.
func quoteAssetOf(symbol string) string {
	for _, quote := range []string{"USDC", "USDT", "FDUSD", "BTC", "ETH", "BNB"} {
		if strings.HasSuffix(symbol, quote) {
			return quote
		}
	}
	return ""
}

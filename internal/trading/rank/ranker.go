// Package rank screens the market and scores buy candidates by momentum.
package rank

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/pkg/concurrency"
)

// Momentum lookbacks in minutes and their weights. Mid-range moves
// count more than the very latest candle or the hour trend.
var momentumWindows = []struct {
	minutes int
	weight  decimal.Decimal
}{
	{1, decimal.NewFromInt(1)},
	{5, decimal.RequireFromString("1.5")},
	{15, decimal.NewFromInt(2)},
	{60, decimal.NewFromInt(1)},
}

// klineLookback covers the longest momentum window plus the current candle.
const klineLookback = 61

// Filters are the hard screens applied before any kline is fetched.
type Filters struct {
	QuoteAsset      string
	Min24hChangePct decimal.Decimal
	MinQuoteVolume  decimal.Decimal
	MinMarketCap    float64
	MinVolatility   float64
	Limit           int
}

// Ranker produces a fresh candidate list each tick. Kline fetches fan
// out over a worker pool; a symbol whose data cannot be fetched is
// silently excluded from the round.
type Ranker struct {
	gateway core.ExchangeGateway
	pool    *concurrency.WorkerPool
	stats   *SymbolStats
	filters Filters
	logger  core.ILogger
}

func NewRanker(gateway core.ExchangeGateway, pool *concurrency.WorkerPool, stats *SymbolStats, filters Filters, logger core.ILogger) *Ranker {
	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	return &Ranker{
		gateway: gateway,
		pool:    pool,
		stats:   stats,
		filters: filters,
		logger:  logger.WithField("component", "ranker"),
	}
}

// Rank returns up to Limit candidates, best first. Symbols in exclude
// (held positions, the base asset itself) are never considered.
func (r *Ranker) Rank(ctx context.Context, exclude map[string]bool) ([]core.CandidateScore, error) {
	tickers, err := r.gateway.GetTickers(ctx)
	if err != nil {
		return nil, err
	}

	survivors := r.screen(tickers, exclude)
	if len(survivors) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	scored := make([]core.CandidateScore, 0, len(survivors))

	group := r.pool.Group()
	for _, tk := range survivors {
		tk := tk
		group.Submit(func() {
			score, err := r.momentumScore(ctx, tk.Symbol)
			if err != nil {
				r.logger.Debug("candidate dropped, klines unavailable",
					"symbol", tk.Symbol, "error", err)
				return
			}
			base := strings.TrimSuffix(tk.Symbol, r.filters.QuoteAsset)
			stat, _ := r.stats.Lookup(base)
			mu.Lock()
			scored = append(scored, core.CandidateScore{
				Symbol:        tk.Symbol,
				MomentumScore: score,
				Change24hPct:  tk.Change24hPct,
				QuoteVolume:   tk.QuoteVolume,
				MarketCap:     decimal.NewFromFloat(stat.MarketCap),
				Volatility:    decimal.NewFromFloat(stat.Volatility),
			})
			mu.Unlock()
		})
	}
	group.Wait()

	sortCandidates(scored)
	if r.filters.Limit > 0 && len(scored) > r.filters.Limit {
		scored = scored[:r.filters.Limit]
	}
	return scored, nil
}

// screen applies the cheap ticker-level filters.
func (r *Ranker) screen(tickers []core.Ticker, exclude map[string]bool) []core.Ticker {
	out := make([]core.Ticker, 0, len(tickers))
	for _, tk := range tickers {
		if !strings.HasSuffix(tk.Symbol, r.filters.QuoteAsset) {
			continue
		}
		// Pairs whose base is the quote asset itself are not candidates.
		if strings.HasPrefix(tk.Symbol, r.filters.QuoteAsset) {
			continue
		}
		if exclude[tk.Symbol] {
			continue
		}
		if tk.Change24hPct.LessThan(r.filters.Min24hChangePct) {
			continue
		}
		if tk.QuoteVolume.LessThan(r.filters.MinQuoteVolume) {
			continue
		}
		if !r.passesStatFilters(tk.Symbol) {
			continue
		}
		out = append(out, tk)
	}
	return out
}

// passesStatFilters checks market cap and volatility against the
// metadata file. Assets without metadata pass; the filters only bind
// when both a threshold and a stat exist.
func (r *Ranker) passesStatFilters(symbol string) bool {
	if r.filters.MinMarketCap <= 0 && r.filters.MinVolatility <= 0 {
		return true
	}
	base := strings.TrimSuffix(symbol, r.filters.QuoteAsset)
	stat, ok := r.stats.Lookup(base)
	if !ok {
		return true
	}
	if r.filters.MinMarketCap > 0 && stat.MarketCap < r.filters.MinMarketCap {
		return false
	}
	if r.filters.MinVolatility > 0 && stat.Volatility < r.filters.MinVolatility {
		return false
	}
	return true
}

// momentumScore computes the weighted sum of lookback returns from 1m
// candles.
func (r *Ranker) momentumScore(ctx context.Context, symbol string) (decimal.Decimal, error) {
	candles, err := r.gateway.GetKlines(ctx, symbol, "1m", klineLookback)
	if err != nil {
		return decimal.Zero, err
	}
	if len(candles) < klineLookback {
		// Not enough history; score what we can reach.
		if len(candles) < 2 {
			return decimal.Zero, nil
		}
	}

	last := candles[len(candles)-1].Close
	score := decimal.Zero
	for _, w := range momentumWindows {
		idx := len(candles) - 1 - w.minutes
		if idx < 0 {
			continue
		}
		ref := candles[idx].Close
		if ref.IsZero() {
			continue
		}
		change := last.Sub(ref).Div(ref).Mul(decimal.NewFromInt(100))
		score = score.Add(change.Mul(w.weight))
	}
	return score, nil
}

// sortCandidates orders by momentum, breaking ties by market cap then
// quote volume, all descending.
func sortCandidates(scored []core.CandidateScore) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if !a.MomentumScore.Equal(b.MomentumScore) {
			return a.MomentumScore.GreaterThan(b.MomentumScore)
		}
		if !a.MarketCap.Equal(b.MarketCap) {
			return a.MarketCap.GreaterThan(b.MarketCap)
		}
		return a.QuoteVolume.GreaterThan(b.QuoteVolume)
	})
}

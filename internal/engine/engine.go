// Package engine runs the trading loop: exits, operator actions,
// reconciliation, entries, and state persistence, in that order, once
// per tick.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/internal/risk"
	"autotrader/internal/telemetry"
	"autotrader/internal/trading/alloc"
	"autotrader/internal/trading/book"
	"autotrader/internal/trading/exits"
	"autotrader/internal/trading/rank"
	"autotrader/internal/trading/tax"
)

// Config are the loop-level knobs. Component-level parameters live
// with their components.
type Config struct {
	QuoteAsset        string
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	MaxPositions      int
	CashReserve       decimal.Decimal
	TaxReserveTrades  int
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Gateway    core.ExchangeGateway
	Book       *book.Book
	Exits      *exits.Evaluator
	Ranker     *rank.Ranker
	Planner    *alloc.Planner
	Taxes      *tax.Estimator
	Monitor    *risk.Monitor
	Reconciler *risk.Reconciler
	Queue      *ActionQueue
	Store      core.StateStore
	Ledger     core.Ledger
	Metrics    *telemetry.Metrics
	Logger     core.ILogger
}

// Engine owns the single-threaded trading loop. All trading mutations
// happen on the loop goroutine; the control surface only enqueues
// actions and reads snapshots.
type Engine struct {
	cfg  Config
	deps Deps
	log  core.ILogger

	mu            sync.RWMutex
	cash          decimal.Decimal
	lastReport    []string
	version       int64
	lastReconcile time.Time

	notify func(event string, payload interface{})
}

func New(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.WithField("component", "engine"),
	}
}

// SetNotifier installs a callback invoked after notable events (trade
// closed, position opened). Used by the live server to push updates.
func (e *Engine) SetNotifier(fn func(event string, payload interface{})) {
	e.mu.Lock()
	e.notify = fn
	e.mu.Unlock()
}

// Restore loads the last persisted snapshot. A missing snapshot is a
// fresh start; the first reconcile pass adopts whatever the venue holds.
func (e *Engine) Restore(ctx context.Context) error {
	state, err := e.deps.Store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if state == nil {
		e.log.Info("no persisted state, starting fresh")
		return nil
	}

	e.deps.Book.Restore(state.Positions)
	e.deps.Queue.Restore(state.PendingActions)
	if restorer, ok := e.deps.Ledger.(interface{ Restore([]core.TradeRecord) }); ok {
		restorer.Restore(state.RecentTrades)
	}

	e.mu.Lock()
	e.cash = state.Cash
	e.lastReport = state.LastReport
	e.version = state.Version
	e.mu.Unlock()

	e.log.Info("state restored",
		"positions", len(state.Positions),
		"pending_actions", len(state.PendingActions),
		"version", state.Version)
	return nil
}

// Run executes the trading loop until the context is cancelled. The
// final snapshot is persisted before returning.
func (e *Engine) Run(ctx context.Context) error {
	// Align the book with the venue before trading a single tick.
	if err := e.deps.Reconciler.Reconcile(ctx, time.Now()); err != nil {
		e.log.Warn("initial reconcile failed", "error", err)
	} else {
		e.deps.Metrics.ReconcileRunsTotal.Inc()
	}
	e.mu.Lock()
	e.lastReconcile = time.Now()
	e.mu.Unlock()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.log.Info("trading loop started",
		"tick_interval", e.cfg.TickInterval.String(),
		"max_positions", e.cfg.MaxPositions)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("trading loop stopping")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := e.persist(shutdownCtx); err != nil {
				e.log.Error("final state persist failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one full pass. Exported so tests and dry-run tooling can
// drive the loop deterministically.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	started := time.Now()

	e.refreshCash(ctx)
	e.runExits(ctx, now)
	e.drainActions(ctx, now)
	e.maybeReconcile(ctx, now)
	e.runEntries(ctx, now)

	if err := e.persist(ctx); err != nil {
		e.log.Error("state persist failed", "error", err)
	}

	e.deps.Metrics.TicksTotal.Inc()
	e.deps.Metrics.TickDuration.Observe(time.Since(started).Seconds())
	e.deps.Metrics.OpenPositions.Set(float64(e.deps.Book.Len()))
	cash, _ := e.Cash().Float64()
	e.deps.Metrics.CashBalance.Set(cash)
}

// refreshCash re-reads the free quote balance. On failure the previous
// figure stands for this tick.
func (e *Engine) refreshCash(ctx context.Context) {
	balances, err := e.deps.Gateway.GetAccountBalances(ctx)
	if err != nil {
		e.log.Warn("balance refresh failed, using last known cash", "error", err)
		return
	}
	e.mu.Lock()
	e.cash = balances[e.cfg.QuoteAsset]
	e.mu.Unlock()
}

func (e *Engine) runExits(ctx context.Context, now time.Time) {
	for _, rec := range e.deps.Exits.Sweep(ctx, now) {
		e.recordTrade(rec)
	}
}

// drainActions executes all pending operator commands in FIFO order.
func (e *Engine) drainActions(ctx context.Context, now time.Time) {
	for _, action := range e.deps.Queue.Drain() {
		e.deps.Metrics.ActionsDrained.WithLabelValues(string(action.Type)).Inc()
		e.log.Info("executing action", "id", action.ID, "type", string(action.Type))

		switch action.Type {
		case core.ActionRotate:
			e.closeAll(ctx, now, core.TradeActionRotate)
		case core.ActionLiquidateAll:
			e.closeAll(ctx, now, core.TradeActionLiquidate)
			e.writeLiquidationReport(now)
		case core.ActionInvest:
			// Nothing to do here: the entry phase below runs every
			// tick. The action exists so an operator push is durable
			// and observable even when buys are gated this tick.
		default:
			e.log.Warn("unknown action type ignored", "type", string(action.Type))
		}
	}
}

// closeAll force-closes every open position. Failed sells stay in the
// book and are retried by later ticks.
func (e *Engine) closeAll(ctx context.Context, now time.Time, action core.TradeAction) {
	for _, pos := range e.deps.Book.Snapshot() {
		rec, err := e.deps.Exits.Close(ctx, pos.Symbol, action, now)
		if err != nil {
			e.deps.Metrics.SellFailuresTotal.Inc()
			e.log.Warn("forced close failed, will retry",
				"symbol", pos.Symbol, "error", err)
			continue
		}
		if rec != nil {
			e.recordTrade(*rec)
		}
	}
}

func (e *Engine) maybeReconcile(ctx context.Context, now time.Time) {
	e.mu.RLock()
	due := now.Sub(e.lastReconcile) >= e.cfg.ReconcileInterval
	e.mu.RUnlock()
	if !due {
		return
	}

	if err := e.deps.Reconciler.Reconcile(ctx, now); err != nil {
		e.log.Warn("reconcile failed", "error", err)
		return
	}
	e.deps.Metrics.ReconcileRunsTotal.Inc()
	e.mu.Lock()
	e.lastReconcile = now
	e.mu.Unlock()
}

// runEntries opens new positions when capacity, cash, and market
// conditions allow.
func (e *Engine) runEntries(ctx context.Context, now time.Time) {
	slots := e.cfg.MaxPositions - e.deps.Book.Len()
	if slots <= 0 {
		return
	}
	if !e.deps.Monitor.BuysAllowed(ctx) {
		e.deps.Metrics.BuysBlockedTotal.WithLabelValues("market_risk").Inc()
		return
	}

	available := e.availableCash()
	if available.LessThanOrEqual(decimal.Zero) {
		e.deps.Metrics.BuysBlockedTotal.WithLabelValues("no_cash").Inc()
		return
	}

	exclude := make(map[string]bool)
	for _, pos := range e.deps.Book.Snapshot() {
		exclude[pos.Symbol] = true
	}

	candidates, err := e.deps.Ranker.Rank(ctx, exclude)
	if err != nil {
		e.log.Warn("ranking failed, no entries this tick", "error", err)
		return
	}
	if len(candidates) > slots {
		candidates = candidates[:slots]
	}
	if len(candidates) == 0 {
		return
	}

	constraints := e.fetchConstraints(ctx, candidates)
	for _, plan := range e.deps.Planner.Plan(available, candidates, constraints) {
		e.executeBuy(ctx, plan, now)
	}
}

// availableCash is free cash minus the configured reserve and the tax
// held back for recent gains.
func (e *Engine) availableCash() decimal.Decimal {
	taxReserve := e.deps.Taxes.Reserve(e.deps.Ledger.Tail(e.cfg.TaxReserveTrades))
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cash.Sub(e.cfg.CashReserve).Sub(taxReserve)
}

func (e *Engine) fetchConstraints(ctx context.Context, candidates []core.CandidateScore) map[string]core.TradeConstraints {
	out := make(map[string]core.TradeConstraints, len(candidates))
	for _, c := range candidates {
		tc, err := e.deps.Gateway.GetTradeConstraints(ctx, c.Symbol)
		if err != nil {
			e.log.Debug("constraints unavailable", "symbol", c.Symbol, "error", err)
			continue
		}
		out[c.Symbol] = tc
	}
	return out
}

func (e *Engine) executeBuy(ctx context.Context, plan alloc.Allocation, now time.Time) {
	fill, err := e.deps.Gateway.MarketBuy(ctx, plan.Symbol, plan.QuoteAmount)
	if err != nil {
		e.log.Warn("buy failed", "symbol", plan.Symbol,
			"amount", plan.QuoteAmount.String(), "error", err)
		return
	}
	if err := e.deps.Book.Open(plan.Symbol, fill.FilledPrice, fill.FilledQty, now); err != nil {
		e.log.Error("fill could not be booked", "symbol", plan.Symbol, "error", err)
		return
	}

	e.mu.Lock()
	e.cash = e.cash.Sub(plan.QuoteAmount)
	e.mu.Unlock()

	e.deps.Metrics.BuysTotal.Inc()
	e.log.Info("position opened",
		"symbol", plan.Symbol,
		"price", fill.FilledPrice.String(),
		"qty", fill.FilledQty.String(),
		"spent", plan.QuoteAmount.String())
	e.emit("position_opened", map[string]string{
		"symbol": plan.Symbol,
		"price":  fill.FilledPrice.String(),
		"qty":    fill.FilledQty.String(),
	})
}

func (e *Engine) recordTrade(rec core.TradeRecord) {
	if err := e.deps.Ledger.Append(rec); err != nil {
		e.log.Error("ledger append failed", "symbol", rec.Symbol, "error", err)
	}

	proceeds := rec.ExitPrice.Mul(rec.Quantity).Sub(rec.Fees)
	e.mu.Lock()
	e.cash = e.cash.Add(proceeds)
	e.mu.Unlock()

	e.deps.Metrics.TradesClosedTotal.WithLabelValues(string(rec.Action)).Inc()
	pnl, _ := rec.RealizedPnL.Float64()
	e.deps.Metrics.RealizedPnLTotal.Add(pnl)
	taxDue, _ := rec.Tax.Float64()
	e.deps.Metrics.TaxAccruedTotal.Add(taxDue)
	e.emit("trade_closed", rec)
}

func (e *Engine) writeLiquidationReport(now time.Time) {
	trades := e.deps.Ledger.Tail(e.cfg.TaxReserveTrades)
	lines := []string{
		fmt.Sprintf("Liquidation at %s", now.UTC().Format(time.RFC3339)),
	}
	total := decimal.Zero
	for _, rec := range trades {
		if rec.Action != core.TradeActionLiquidate {
			continue
		}
		total = total.Add(rec.RealizedPnL)
		lines = append(lines, fmt.Sprintf("%s: pnl %s (%s%%), tax %s",
			rec.Symbol, rec.RealizedPnL.StringFixed(2),
			rec.RealizedPnLPct.StringFixed(2), rec.Tax.StringFixed(2)))
	}
	lines = append(lines, fmt.Sprintf("Total realized: %s", total.StringFixed(2)))
	for _, pos := range e.deps.Book.Snapshot() {
		lines = append(lines, fmt.Sprintf("%s: NOT SOLD (qty %s), will retry",
			pos.Symbol, pos.Quantity.String()))
	}

	e.mu.Lock()
	e.lastReport = lines
	e.mu.Unlock()
	for _, line := range lines {
		e.log.Info(line)
	}
}

func (e *Engine) persist(ctx context.Context) error {
	e.mu.Lock()
	e.version++
	state := &core.BotState{
		Cash:           e.cash,
		Positions:      e.deps.Book.Snapshot(),
		PendingActions: e.deps.Queue.Pending(),
		RecentTrades:   e.deps.Ledger.Tail(e.cfg.TaxReserveTrades),
		LastReport:     e.lastReport,
		Version:        e.version,
		UpdatedAt:      time.Now().UTC(),
	}
	e.mu.Unlock()

	return e.deps.Store.SaveState(ctx, state)
}

func (e *Engine) emit(event string, payload interface{}) {
	e.mu.RLock()
	fn := e.notify
	e.mu.RUnlock()
	if fn != nil {
		fn(event, payload)
	}
}

// Cash returns the last known free quote balance.
func (e *Engine) Cash() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cash
}

// Positions returns a snapshot of the open positions.
func (e *Engine) Positions() []core.Position {
	return e.deps.Book.Snapshot()
}

// RecentTrades returns up to n most recent closed trades.
func (e *Engine) RecentTrades(n int) []core.TradeRecord {
	return e.deps.Ledger.Tail(n)
}

// LastReport returns the lines of the most recent liquidation report.
func (e *Engine) LastReport() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.lastReport...)
}

// Submit enqueues an operator action for the next tick.
func (e *Engine) Submit(t core.ActionType) core.Action {
	return e.deps.Queue.Enqueue(t)
}

package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	"autotrader/internal/trading/book"
	"autotrader/pkg/tradingutils"
)

// driftTolerancePct is the relative quantity mismatch below which the
// book is left alone. Rounding residue from step sizes lands well
// under this.
var driftTolerancePct = decimal.RequireFromString("0.1")

// Reconciler periodically re-derives the position book from the
// venue's actual balances. The exchange is the source of truth:
// unknown holdings are adopted, drifted quantities corrected, and
// externally sold positions dropped.
type Reconciler struct {
	gateway    core.ExchangeGateway
	book       *book.Book
	quoteAsset string
	logger     core.ILogger
}

func NewReconciler(gateway core.ExchangeGateway, b *book.Book, quoteAsset string, logger core.ILogger) *Reconciler {
	return &Reconciler{
		gateway:    gateway,
		book:       b,
		quoteAsset: quoteAsset,
		logger:     logger.WithField("component", "reconciler"),
	}
}

// Reconcile aligns the book with the venue. Per-asset failures are
// logged and skipped; only a balance fetch failure aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, now time.Time) error {
	balances, err := r.gateway.GetAccountBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch balances: %w", err)
	}

	seen := make(map[string]bool)
	for asset, balance := range balances {
		if asset == r.quoteAsset || balance.LessThanOrEqual(decimal.Zero) {
			continue
		}
		symbol := asset + r.quoteAsset
		seen[symbol] = true

		if pos, ok := r.book.Get(symbol); ok {
			r.correctDrift(symbol, pos, balance)
			continue
		}
		r.adopt(ctx, symbol, balance, now)
	}

	// Positions whose asset no longer shows a balance were sold
	// outside the bot. Drop them; there is nothing left to sell.
	for _, pos := range r.book.Snapshot() {
		if !seen[pos.Symbol] {
			r.logger.Warn("position vanished from venue, dropping", "symbol", pos.Symbol)
			r.book.Drop(pos.Symbol)
		}
	}
	return nil
}

// correctDrift overwrites the book quantity when it disagrees with the
// venue beyond tolerance.
func (r *Reconciler) correctDrift(symbol string, pos core.Position, balance decimal.Decimal) {
	if pos.Quantity.IsZero() {
		return
	}
	diffPct := balance.Sub(pos.Quantity).Div(pos.Quantity).Abs().Mul(decimal.NewFromInt(100))
	if diffPct.LessThanOrEqual(driftTolerancePct) {
		return
	}
	r.logger.Warn("quantity drift corrected",
		"symbol", symbol,
		"book_qty", pos.Quantity.String(),
		"venue_qty", balance.String())
	if err := r.book.AdjustQuantity(symbol, balance); err != nil {
		r.logger.Error("drift correction failed", "symbol", symbol, "error", err)
	}
}

// adopt seeds a book entry for a holding the bot does not know about,
// typically after a restart with a lost snapshot or a manual buy. The
// entry price is the current price; PnL starts from here.
func (r *Reconciler) adopt(ctx context.Context, symbol string, balance decimal.Decimal, now time.Time) {
	price, err := r.gateway.GetPrice(ctx, symbol)
	if err != nil {
		r.logger.Debug("cannot price unknown holding, skipped", "symbol", symbol, "error", err)
		return
	}

	tc, err := r.gateway.GetTradeConstraints(ctx, symbol)
	if err == nil {
		if tradingutils.RoundToStep(balance, tc.StepSize).IsZero() {
			return // unsellable dust
		}
		if tradingutils.Notional(price, balance).LessThan(tc.MinNotional) {
			return
		}
	}

	if err := r.book.Open(symbol, price, balance, now); err != nil {
		r.logger.Error("failed to adopt holding", "symbol", symbol, "error", err)
		return
	}
	r.logger.Info("adopted untracked holding",
		"symbol", symbol, "qty", balance.String(), "entry", price.String())
}

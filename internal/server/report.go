package server

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
)

// RenderStatus formats the operator-facing status report: cash, open
// positions with unrealized PnL where a price is known, and the recent
// realized total.
func RenderStatus(cash decimal.Decimal, positions []core.Position, prices map[string]decimal.Decimal, trades []core.TradeRecord, now time.Time) []string {
	lines := []string{
		fmt.Sprintf("Status at %s", now.UTC().Format(time.RFC3339)),
		fmt.Sprintf("Cash: %s", cash.StringFixed(2)),
		fmt.Sprintf("Open positions: %d", len(positions)),
	}

	for _, pos := range positions {
		held := now.Sub(pos.OpenedAt).Truncate(time.Second)
		line := fmt.Sprintf("  %s qty %s entry %s held %s",
			pos.Symbol, pos.Quantity.String(), pos.EntryPrice.StringFixed(4), held)
		if price, ok := prices[pos.Symbol]; ok {
			line += fmt.Sprintf(" pnl %s%%", pos.PnLPercent(price).StringFixed(2))
		}
		lines = append(lines, line)
	}

	realized := decimal.Zero
	taxes := decimal.Zero
	for _, rec := range trades {
		realized = realized.Add(rec.RealizedPnL)
		taxes = taxes.Add(rec.Tax)
	}
	lines = append(lines, fmt.Sprintf("Recent trades: %d, realized %s, tax accrued %s",
		len(trades), realized.StringFixed(2), taxes.StringFixed(2)))
	return lines
}

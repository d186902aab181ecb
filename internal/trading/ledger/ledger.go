// Package ledger records closed trades to an append-only CSV file.
package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"autotrader/internal/core"
)

var csvHeader = []string{
	"closed_at", "symbol", "action", "entry_price", "exit_price", "quantity",
	"opened_at", "duration_seconds", "fees", "tax", "realized_pnl", "realized_pnl_pct",
}

// maxRecent bounds the in-memory tail kept for tax-reserve sums and
// reporting. The CSV file itself is unbounded.
const maxRecent = 200

// CSVLedger implements core.Ledger. Rows are flushed per append so a
// crash loses at most the trade being written.
type CSVLedger struct {
	mu     sync.Mutex
	path   string
	recent []core.TradeRecord
	logger core.ILogger
}

// New opens (or creates) the ledger file. The header row is written
// only when the file is new.
func New(path string, logger core.ILogger) (*CSVLedger, error) {
	l := &CSVLedger{
		path:   path,
		logger: logger.WithField("component", "ledger"),
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		if err := l.writeRow(csvHeader); err != nil {
			return nil, fmt.Errorf("failed to initialize trade log: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat trade log: %w", err)
	}
	return l, nil
}

// Append writes one trade to the CSV file and the in-memory tail.
func (l *CSVLedger) Append(rec core.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := []string{
		rec.ClosedAt.UTC().Format(time.RFC3339),
		rec.Symbol,
		string(rec.Action),
		rec.EntryPrice.String(),
		rec.ExitPrice.String(),
		rec.Quantity.String(),
		rec.OpenedAt.UTC().Format(time.RFC3339),
		strconv.FormatInt(rec.DurationSeconds, 10),
		rec.Fees.String(),
		rec.Tax.String(),
		rec.RealizedPnL.String(),
		rec.RealizedPnLPct.StringFixed(4),
	}
	if err := l.writeRow(row); err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}

	l.recent = append(l.recent, rec)
	if len(l.recent) > maxRecent {
		l.recent = l.recent[len(l.recent)-maxRecent:]
	}
	return nil
}

// Tail returns up to n most recent trades, oldest first.
func (l *CSVLedger) Tail(n int) []core.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || len(l.recent) == 0 {
		return nil
	}
	if n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]core.TradeRecord, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// Restore seeds the in-memory tail from a persisted snapshot so the
// tax reserve survives a restart.
func (l *CSVLedger) Restore(trades []core.TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recent = append([]core.TradeRecord(nil), trades...)
	if len(l.recent) > maxRecent {
		l.recent = l.recent[len(l.recent)-maxRecent:]
	}
}

func (l *CSVLedger) writeRow(row []string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

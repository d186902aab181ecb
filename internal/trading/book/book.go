// Package book holds the set of open positions, keyed by symbol.
package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
)

// Book is the authoritative in-memory record of open positions. At most
// one position per symbol. Safe for concurrent use; the engine mutates
// it from the tick loop while the control server reads snapshots.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*core.Position
}

// New creates an empty Book.
func New() *Book {
	return &Book{positions: make(map[string]*core.Position)}
}

// Open adds a new position. MaxPriceSeen starts at the entry price.
// Returns ErrDuplicateSymbol if a position for the symbol already exists.
func (b *Book) Open(symbol string, entryPrice, qty decimal.Decimal, openedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.positions[symbol]; exists {
		return apperrors.ErrDuplicateSymbol
	}
	b.positions[symbol] = &core.Position{
		Symbol:       symbol,
		EntryPrice:   entryPrice,
		Quantity:     qty,
		OpenedAt:     openedAt,
		MaxPriceSeen: entryPrice,
	}
	return nil
}

// Close removes the position and returns its final state.
func (b *Book) Close(symbol string) (core.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, exists := b.positions[symbol]
	if !exists {
		return core.Position{}, apperrors.ErrPositionNotFound
	}
	delete(b.positions, symbol)
	return *pos, nil
}

// Drop removes the position without producing any trade record. Used
// for dust holdings that cannot be sold.
func (b *Book) Drop(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.positions, symbol)
}

// Get returns a copy of the position for the symbol.
func (b *Book) Get(symbol string) (core.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, exists := b.positions[symbol]
	if !exists {
		return core.Position{}, false
	}
	return *pos, true
}

// Has reports whether a position is open for the symbol.
func (b *Book) Has(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.positions[symbol]
	return exists
}

// AdjustQuantity overwrites the held quantity after reconciliation
// detects drift against the venue's actual balance. Entry price and
// open time are preserved.
func (b *Book) AdjustQuantity(symbol string, qty decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, exists := b.positions[symbol]
	if !exists {
		return apperrors.ErrPositionNotFound
	}
	pos.Quantity = qty
	return nil
}

// ObservePrice records a price observation, ratcheting MaxPriceSeen.
// The high-water mark only ever moves up.
func (b *Book) ObservePrice(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, exists := b.positions[symbol]
	if !exists {
		return
	}
	if price.GreaterThan(pos.MaxPriceSeen) {
		pos.MaxPriceSeen = price
	}
}

// Restore replaces the whole book from a persisted snapshot.
func (b *Book) Restore(positions []core.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions = make(map[string]*core.Position, len(positions))
	for i := range positions {
		p := positions[i]
		if p.MaxPriceSeen.LessThan(p.EntryPrice) {
			p.MaxPriceSeen = p.EntryPrice
		}
		b.positions[p.Symbol] = &p
	}
}

// Snapshot returns a copy of all positions, sorted by symbol for
// deterministic iteration and reporting.
func (b *Book) Snapshot() []core.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

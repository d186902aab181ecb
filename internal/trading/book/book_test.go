package book

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	apperrors "autotrader/pkg/errors"
)

func TestOpenAndGet(t *testing.T) {
	b := New()
	openedAt := time.Now()

	require.NoError(t, b.Open("ETHUSDC", decimal.NewFromInt(2000), decimal.NewFromInt(1), openedAt))

	pos, ok := b.Get("ETHUSDC")
	require.True(t, ok)
	assert.Equal(t, "ETHUSDC", pos.Symbol)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(2000)))
	assert.True(t, pos.MaxPriceSeen.Equal(pos.EntryPrice), "high-water starts at entry")
	assert.Equal(t, 1, b.Len())
}

func TestOpenDuplicateRejected(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("BTCUSDC", decimal.NewFromInt(50000), decimal.NewFromInt(1), time.Now()))

	err := b.Open("BTCUSDC", decimal.NewFromInt(51000), decimal.NewFromInt(2), time.Now())
	assert.ErrorIs(t, err, apperrors.ErrDuplicateSymbol)

	// Original position is untouched.
	pos, _ := b.Get("BTCUSDC")
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(50000)))
}

func TestCloseRemovesPosition(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("SOLUSDC", decimal.NewFromInt(100), decimal.NewFromInt(5), time.Now()))

	pos, err := b.Close("SOLUSDC")
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 0, b.Len())

	_, err = b.Close("SOLUSDC")
	assert.ErrorIs(t, err, apperrors.ErrPositionNotFound)
}

func TestObservePriceRatchet(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("ETHUSDC", decimal.NewFromInt(100), decimal.NewFromInt(1), time.Now()))

	b.ObservePrice("ETHUSDC", decimal.NewFromInt(103))
	b.ObservePrice("ETHUSDC", decimal.NewFromInt(101))

	pos, _ := b.Get("ETHUSDC")
	assert.True(t, pos.MaxPriceSeen.Equal(decimal.NewFromInt(103)), "high-water never moves down")

	// Unknown symbol is a no-op.
	b.ObservePrice("NOPE", decimal.NewFromInt(1))
}

func TestAdjustQuantity(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("ETHUSDC", decimal.NewFromInt(100), decimal.NewFromInt(2), time.Now()))

	require.NoError(t, b.AdjustQuantity("ETHUSDC", decimal.RequireFromString("1.5")))
	pos, _ := b.Get("ETHUSDC")
	assert.True(t, pos.Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)), "entry preserved")

	assert.ErrorIs(t, b.AdjustQuantity("NOPE", decimal.NewFromInt(1)), apperrors.ErrPositionNotFound)
}

func TestDropIsSilent(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("DUSTUSDC", decimal.NewFromInt(1), decimal.RequireFromString("0.0001"), time.Now()))

	b.Drop("DUSTUSDC")
	assert.Equal(t, 0, b.Len())
	b.Drop("DUSTUSDC") // idempotent
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	b := New()
	require.NoError(t, b.Open("ZRXUSDC", decimal.NewFromInt(1), decimal.NewFromInt(1), time.Now()))
	require.NoError(t, b.Open("AAVEUSDC", decimal.NewFromInt(1), decimal.NewFromInt(1), time.Now()))

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "AAVEUSDC", snap[0].Symbol)
	assert.Equal(t, "ZRXUSDC", snap[1].Symbol)

	// Mutating the snapshot must not touch the book.
	snap[0].Quantity = decimal.NewFromInt(99)
	pos, _ := b.Get("AAVEUSDC")
	assert.True(t, pos.Quantity.Equal(decimal.NewFromInt(1)))
}

func TestRestore(t *testing.T) {
	b := New()
	b.Restore([]core.Position{
		{Symbol: "ETHUSDC", EntryPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1)},
	})

	pos, ok := b.Get("ETHUSDC")
	require.True(t, ok)
	// Zero-valued high-water from an old snapshot is raised to entry.
	assert.True(t, pos.MaxPriceSeen.Equal(decimal.NewFromInt(100)))
}

package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
)

func sampleState() *core.BotState {
	return &core.BotState{
		Cash: decimal.NewFromInt(1000),
		Positions: []core.Position{{
			Symbol:       "ETHUSDC",
			EntryPrice:   decimal.NewFromInt(2000),
			Quantity:     decimal.RequireFromString("0.5"),
			OpenedAt:     time.Now().UTC().Truncate(time.Second),
			MaxPriceSeen: decimal.NewFromInt(2100),
		}},
		PendingActions: []core.Action{{ID: "x", Type: core.ActionInvest, EnqueuedAt: time.Now().UTC()}},
		Version:        7,
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	want := sampleState()
	require.NoError(t, store.SaveState(ctx, want))

	got, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Cash.Equal(want.Cash))
	require.Len(t, got.Positions, 1)
	assert.Equal(t, "ETHUSDC", got.Positions[0].Symbol)
	assert.True(t, got.Positions[0].MaxPriceSeen.Equal(decimal.NewFromInt(2100)))
	assert.Equal(t, int64(7), got.Version)
}

func TestSQLiteStoreEmptyIsNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreOverwritesSingleRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first := sampleState()
	require.NoError(t, store.SaveState(ctx, first))

	second := sampleState()
	second.Version = 8
	second.Positions = nil
	require.NoError(t, store.SaveState(ctx, second))

	got, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.Version)
	assert.Empty(t, got.Positions, "latest snapshot replaces the previous one")
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SaveState(ctx, sampleState()))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.Version)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	got, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SaveState(ctx, sampleState()))
	got, err = store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Cash.Equal(decimal.NewFromInt(1000)))
}

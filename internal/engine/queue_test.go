package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/pkg/logging"
)

func TestQueueFIFO(t *testing.T) {
	q := NewActionQueue(logging.NopLogger{})

	first := q.Enqueue(core.ActionRotate)
	second := q.Enqueue(core.ActionInvest)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, q.Len())

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, core.ActionRotate, drained[0].Type)
	assert.Equal(t, core.ActionInvest, drained[1].Type)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain(), "second drain is empty")
}

func TestQueuePendingDoesNotDrain(t *testing.T) {
	q := NewActionQueue(logging.NopLogger{})
	q.Enqueue(core.ActionLiquidateAll)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, q.Len(), "pending is a read-only view")
}

func TestQueueRestore(t *testing.T) {
	q := NewActionQueue(logging.NopLogger{})
	q.Restore([]core.Action{{ID: "a", Type: core.ActionRotate}})

	drained := q.Drain()
	require.Len(t, drained, 1)
	assert.Equal(t, "a", drained[0].ID)
}

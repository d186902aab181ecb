package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"autotrader/internal/core"
)

// ActionQueue holds operator commands until the next tick drains them.
// Pending actions ride along in the persisted snapshot, so a command
// accepted just before a crash still executes after restart.
type ActionQueue struct {
	mu      sync.Mutex
	actions []core.Action
	logger  core.ILogger
}

func NewActionQueue(logger core.ILogger) *ActionQueue {
	return &ActionQueue{logger: logger.WithField("component", "action_queue")}
}

// Enqueue appends a command and returns it with its assigned ID.
func (q *ActionQueue) Enqueue(t core.ActionType) core.Action {
	action := core.Action{
		ID:         uuid.NewString(),
		Type:       t,
		EnqueuedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	q.actions = append(q.actions, action)
	q.mu.Unlock()
	q.logger.Info("action enqueued", "id", action.ID, "type", string(t))
	return action
}

// Drain removes and returns all pending actions in FIFO order.
func (q *ActionQueue) Drain() []core.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.actions
	q.actions = nil
	return out
}

// Pending returns a copy of the queue without draining it.
func (q *ActionQueue) Pending() []core.Action {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]core.Action, len(q.actions))
	copy(out, q.actions)
	return out
}

// Restore replaces the queue contents from a persisted snapshot.
func (q *ActionQueue) Restore(actions []core.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append([]core.Action(nil), actions...)
}

func (q *ActionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

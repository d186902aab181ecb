package engine

import (
	"context"
	"encoding/json"
	"sync"

	"autotrader/internal/core"
)

// MemoryStore keeps the snapshot in process memory. Used in tests and
// dry runs where persistence across restarts does not matter.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveState(_ context.Context, state *core.BotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadState(_ context.Context) (*core.BotState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	var state core.BotState
	if err := json.Unmarshal(s.data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemoryStore) Close() error { return nil }

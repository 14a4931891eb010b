package oauthstate

import (
	"context"
	"sync"
	"time"
)

// MemStore keeps states in process for tests and single-instance dev runs.
type MemStore struct {
	mu     sync.Mutex
	states map[string]State
}

func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]State)}
}

func (m *MemStore) Save(_ context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.State] = st
	return nil
}

func (m *MemStore) Consume(_ context.Context, provider, state string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[state]
	if !ok || st.Provider != provider {
		return State{}, false, nil
	}
	delete(m.states, state)
	if !st.ExpiresAt.After(time.Now()) {
		return State{}, false, nil
	}
	return st, true, nil
}

func (m *MemStore) CleanupExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for k, st := range m.states {
		if !st.ExpiresAt.After(now) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

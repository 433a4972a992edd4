package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/evalmesh/core"
)

var (
	_ core.Store     = (*InMemoryStore)(nil)
	_ core.RunLoader = (*InMemoryStore)(nil)
)

// InMemoryStore is a volatile Store keeping run snapshots in a process local
// map. It is safe for concurrent access and best suited for tests or
// short-lived processes. Snapshots are cloned on save and on retrieval.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*core.RunState
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string]*core.RunState)}
}

// Save stores (or overwrites) a clone of the snapshot.
func (s *InMemoryStore) Save(_ context.Context, state *core.RunState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidID)
	}
	if err := validateID(state.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[state.ID] = state.Clone()
	return nil
}

// Load returns a clone of the stored run or ErrNotFound.
func (s *InMemoryStore) Load(_ context.Context, id string) (*core.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return state.Clone(), nil
}

// List returns clones of every stored run, oldest first.
func (s *InMemoryStore) List(context.Context) ([]*core.RunState, error) {
	s.mu.RLock()
	runs := make([]*core.RunState, 0, len(s.runs))
	for _, state := range s.runs {
		runs = append(runs, state.Clone())
	}
	s.mu.RUnlock()
	sortRuns(runs)
	return runs, nil
}

// Delete removes a run. Deleting an unknown id returns ErrNotFound.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.runs, id)
	return nil
}

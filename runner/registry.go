package runner

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
)

// Registry indexes runs by id. It is safe for concurrent use and may be
// shared by several runners.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*handle)}
}

// handle is the registry entry of one run. state is written only by the
// run's own goroutine; readers get clones.
type handle struct {
	mu              sync.RWMutex
	state           *core.RunState
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
}

func newHandle(state *core.RunState, cancel context.CancelFunc) *handle {
	return &handle{state: state, cancel: cancel, done: make(chan struct{})}
}

func (h *handle) snapshot() *core.RunState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Clone()
}

func (h *handle) update(fn func(s *core.RunState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.state)
}

func (h *handle) transition(next core.RunStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Status.CanTransition(next) {
		return false
	}
	h.state.Status = next
	return true
}

func (h *handle) requestCancel() {
	h.mu.Lock()
	h.cancelRequested = true
	h.mu.Unlock()
	h.cancel()
}

func (h *handle) cancelled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cancelRequested
}

func (h *handle) terminal() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (g *Registry) add(id string, h *handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs[id] = h
}

func (g *Registry) get(id string) (*handle, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.runs[id]
	return h, ok
}

// Len returns the number of indexed runs.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runs)
}

// Snapshots returns a copy of every indexed run. Non-terminal runs come
// first; within each group runs are ordered by start time.
func (g *Registry) Snapshots() []*core.RunState {
	g.mu.RLock()
	handles := make([]*handle, 0, len(g.runs))
	for _, h := range g.runs {
		handles = append(handles, h)
	}
	g.mu.RUnlock()

	out := make([]*core.RunState, len(handles))
	for i, h := range handles {
		out[i] = h.snapshot()
	}
	slices.SortFunc(out, func(a, b *core.RunState) int {
		at, bt := a.Status.Terminal(), b.Status.Terminal()
		if at != bt {
			if at {
				return 1
			}
			return -1
		}
		if c := a.StartedAt.Compare(b.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Prune evicts terminal runs that finished before now minus olderThan and
// returns how many were removed.
func (g *Registry) Prune(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for id, h := range g.runs {
		if !h.terminal() {
			continue
		}
		h.mu.RLock()
		finished := h.state.FinishedAt
		h.mu.RUnlock()
		if !finished.After(cutoff) {
			delete(g.runs, id)
			removed++
		}
	}
	return removed
}

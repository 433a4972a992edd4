package evalmesh

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/casesource"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/judge"
	"github.com/hupe1980/evalmesh/runner"
)

func upperConfig() RunConfig {
	return NewRunConfig().
		WithJudge(judge.Predicate("upper", func(response any, criteria string) bool {
			return response == criteria
		})).
		AddSource(casesource.FromCases("upper", strings.ToUpper,
			Case{Input: "a", Criteria: "A"},
			Case{Input: "b", Criteria: "B"},
			Case{Input: "c", Criteria: "x"},
		)).
		Build()
}

func TestEvalMesh_Run(t *testing.T) {
	m := New()
	state, err := m.Run(context.Background(), upperConfig())
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, state.Status)
	require.NotNil(t, state.Metrics)
	assert.Equal(t, 2, state.Metrics.Passed)
	assert.Equal(t, 1, state.Metrics.Failed)

	got, err := m.Status(state.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ID, got.ID)
	assert.Len(t, m.ListActive(), 1)
}

func TestEvalMesh_RunContextDone(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	cfg := NewRunConfig().
		WithJudge(judge.Predicate("any", func(any, string) bool { return true })).
		AddSource(casesource.FromCases("slow", func(in string) string { <-gate; return in }, Case{Input: "a", Criteria: "a"})).
		Build()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	state, err := New().Run(ctx, cfg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, state.ID)
}

func TestEvalMesh_Stream(t *testing.T) {
	m := New()
	id, events := m.Stream(context.Background(), upperConfig())

	var types []core.EventType
	for ev := range events {
		assert.Equal(t, id, ev.RunID)
		types = append(types, ev.Type)
	}
	require.Len(t, types, 5)
	assert.Equal(t, core.EventStarted, types[0])
	assert.Equal(t, core.EventCompleted, types[4])
}

func TestEvalMesh_StreamClosesAfterReaderStops(t *testing.T) {
	gate := make(chan struct{})
	cfg := NewRunConfig().
		WithJudge(judge.Predicate("any", func(any, string) bool { return true })).
		AddSource(casesource.FromCases("gated", func(in string) string { <-gate; return in },
			Case{Input: "a", Criteria: "a"}, Case{Input: "b", Criteria: "b"})).
		Build()

	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	id, events := m.Stream(ctx, cfg)

	first := <-events
	assert.Equal(t, core.EventStarted, first.Type)
	cancel()
	close(gate)

	state, err := m.Runner().Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, state.Status)

	closed := make(chan struct{})
	go func() {
		for range events {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("event channel was not closed after the run ended")
	}
}

func TestEvalMesh_AsyncAndCancel(t *testing.T) {
	gate := make(chan struct{})
	cfg := NewRunConfig().
		WithJudge(judge.Predicate("any", func(any, string) bool { return true })).
		AddSource(casesource.FromCases("gated", func(in string) string { <-gate; return in },
			Case{Input: "a", Criteria: "a"}, Case{Input: "b", Criteria: "b"})).
		WithParallel(false).
		Build()

	reg := runner.NewRegistry()
	m := New(func(o *Options) { o.Registry = reg })
	id := m.RunAsync(context.Background(), cfg)
	require.NoError(t, m.Cancel(id))
	close(gate)

	state, err := m.Runner().Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunCancelled, state.Status)
	assert.Equal(t, 1, reg.Len())
}

func TestEvalMesh_RunWithTimeout(t *testing.T) {
	state := New().RunWithTimeout(context.Background(), upperConfig(), time.Second)
	assert.Equal(t, core.RunCompleted, state.Status)
}

package runner

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/testutil"
	"github.com/hupe1980/evalmesh/pipeline"
)

const waitFor = 5 * time.Second

func source(work any, cases ...core.Case) *testutil.Source {
	return &testutil.Source{Suite: core.Suite{Name: "test", Work: work, Cases: cases}}
}

func statuses(results []core.Result) map[core.ResultStatus]int {
	out := map[core.ResultStatus]int{}
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

func TestRunner_CompletesWithOneResultPerCase(t *testing.T) {
	sink := testutil.NewSink("rec")
	rep := &testutil.Reporter{}
	cfg := core.NewRunConfig().
		WithJudge(testutil.EqualsJudge()).
		AddSource(source(func(in any) string { return fmt.Sprint(in) }, testutil.Cases(20, "3")...)).
		WithConcurrency(4).
		AddSink(sink).
		AddReporter(rep).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status, state.Error)
	assert.Equal(t, 20, state.Total)
	assert.Len(t, state.Results, 20)
	require.NotNil(t, state.Metrics)
	assert.Equal(t, 1, state.Metrics.Passed)
	assert.Equal(t, 19, state.Metrics.Failed)
	assert.False(t, state.FinishedAt.IsZero())

	seen := map[int]bool{}
	for _, r := range state.Results {
		assert.False(t, seen[r.Index], "duplicate result for %d", r.Index)
		seen[r.Index] = true
		assert.Equal(t, "test", r.Source)
	}

	types := sink.Types()
	require.Len(t, types, 22)
	assert.Equal(t, core.EventStarted, types[0])
	assert.Equal(t, core.EventCompleted, types[21])
	last := sink.Events()[20]
	assert.Equal(t, 20, last.Progress.Completed)
	assert.Equal(t, 100.0, last.Progress.Percent)

	assert.Equal(t, 20, rep.Info().Total)
	assert.Len(t, rep.Results(), 20)
	require.NotNil(t, rep.Finalized())
	assert.Equal(t, core.RunCompleted, rep.Finalized().Status)
}

func TestRunner_UnitFailuresAreIsolated(t *testing.T) {
	cases := []core.Case{
		testutil.NewCase("ok").Criteria("ok").Build(),
		testutil.NewCase("panic").Criteria("x").Build(),
		testutil.NewCase("error").Criteria("x").Build(),
	}
	work := func(ctx context.Context, in string) (string, error) {
		switch in {
		case "panic":
			panic("work exploded")
		case "error":
			return "", testutil.ErrBoom
		}
		return in, nil
	}
	cfg := core.NewRunConfig().WithJudge(testutil.EqualsJudge()).AddSource(source(work, cases...)).Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	require.Len(t, state.Results, 3)
	assert.Equal(t, map[core.ResultStatus]int{core.StatusPassed: 1, core.StatusError: 2}, statuses(state.Results))
	assert.Equal(t, 2, state.Metrics.Errors)
}

func TestRunner_MissingJudgeAndBadArity(t *testing.T) {
	cfg := core.NewRunConfig().
		AddSource(source(testutil.Echo, testutil.Cases(2, "c")...)).
		AddSource(source(func(a, b, c, d any) any { return a }, testutil.Cases(2, "c")...)).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	require.Len(t, state.Results, 4)
	for _, r := range state.Results {
		assert.Equal(t, core.StatusError, r.Status)
	}
	assert.Equal(t, 0, state.Metrics.Evaluated)
	assert.Equal(t, 4, state.Metrics.Errors)
}

func TestRunner_SuiteJudgeOverridesRunJudge(t *testing.T) {
	src := source(testutil.Echo, testutil.Cases(2, "c")...)
	src.Suite.Judge = testutil.ConstJudge("suite", core.Label("suite"))
	cfg := core.NewRunConfig().WithJudge(testutil.ConstJudge("run", core.Bool(true))).AddSource(src).Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	for _, r := range state.Results {
		assert.Equal(t, core.StatusEvaluated, r.Status)
		assert.Equal(t, "suite", r.Judgment.Label)
	}
}

func TestRunner_TimeoutReleasesSlot(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	work := func(in int) int {
		if in == 0 {
			<-block
		}
		return in
	}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.Cases(5, "c")...)).
		WithConcurrency(1).
		WithTimeout(50 * time.Millisecond).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	require.Len(t, state.Results, 5)
	assert.Equal(t, 0, state.Results[0].Index)
	assert.Equal(t, pipeline.StageTimeout, state.Results[0].Stage)
	assert.Contains(t, state.Results[0].Error, "timed out")
	assert.Equal(t, 4, state.Metrics.Passed)
}

func TestRunner_LateResultAfterTimeoutIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	work := func(in string) string {
		<-release
		return in
	}
	logger := &testutil.Logger{}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.NewCase("slow").Build())).
		WithTimeout(20 * time.Millisecond).
		Build()

	state := New(func(o *Options) { o.Logger = logger }).StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	require.Len(t, state.Results, 1)
	assert.Equal(t, pipeline.StageTimeout, state.Results[0].Stage)

	close(release)
	assert.Eventually(t, func() bool {
		return slices.Contains(logger.Messages(), "unit.late_result")
	}, waitFor, 5*time.Millisecond)
}

func TestRunner_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	work := func(in int) int {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return in
	}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.Cases(30, "c")...)).
		WithConcurrency(3).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunner_SequentialPreservesSourceOrder(t *testing.T) {
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(testutil.Echo, testutil.Cases(3, "a")...)).
		AddSource(source(testutil.Echo, testutil.Cases(3, "b")...)).
		WithParallel(false).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Len(t, state.Results, 6)
	for i, r := range state.Results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, "b", state.Results[5].Criteria)
}

func TestRunner_CacheDoesNotCrossSources(t *testing.T) {
	cache, err := pipeline.Cache(16)
	require.NoError(t, err)

	c := core.Case{Input: "q", Criteria: "good"}
	good := &testutil.Source{Suite: core.Suite{Name: "model-a", Work: func(string) string { return "good" }, Cases: []core.Case{c}}}
	bad := &testutil.Source{Suite: core.Suite{Name: "model-b", Work: func(string) string { return "bad" }, Cases: []core.Case{c}}}
	cfg := core.NewRunConfig().
		WithJudge(testutil.EqualsJudge()).
		AddSource(good, bad).
		WithParallel(false).
		Use(cache).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status, state.Error)
	require.Len(t, state.Results, 2)
	assert.Equal(t, "model-a", state.Results[0].Source)
	assert.Equal(t, core.StatusPassed, state.Results[0].Status)
	assert.Equal(t, "model-b", state.Results[1].Source)
	assert.Equal(t, "bad", state.Results[1].Response)
	assert.Equal(t, core.StatusFailed, state.Results[1].Status)
}

func TestRunner_Cancel(t *testing.T) {
	gate := make(chan struct{})
	var calls int32
	work := func(in int) int {
		if atomic.AddInt32(&calls, 1) > 2 {
			<-gate
		}
		return in
	}
	sink := testutil.NewSink("rec")
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.Cases(10, "c")...)).
		WithParallel(false).
		AddSink(sink).
		Build()

	r := New()
	id := r.Start(context.Background(), cfg)
	require.Eventually(t, func() bool {
		s, err := r.Status(id)
		return err == nil && len(s.Results) == 2
	}, waitFor, time.Millisecond)

	require.NoError(t, r.Cancel(id))
	close(gate)

	state, err := r.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunCancelled, state.Status)
	assert.Len(t, state.Results, 3)
	assert.Nil(t, state.Metrics)

	types := sink.Types()
	assert.Equal(t, core.EventCancelled, types[len(types)-1])
	assert.NoError(t, r.Cancel(id))
}

func TestRunner_CancelParallelKeepsInFlightResults(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{}, 10)
	work := func(in int) int {
		started <- struct{}{}
		<-gate
		return in
	}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.Cases(10, "c")...)).
		WithConcurrency(2).
		Build()

	r := New()
	id := r.Start(context.Background(), cfg)
	<-started
	<-started
	require.NoError(t, r.Cancel(id))
	close(gate)

	state, err := r.Wait(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, core.RunCancelled, state.Status)
	assert.NotEmpty(t, state.Results)
	assert.Less(t, len(state.Results), 10)
	assert.Nil(t, state.Metrics)
}

func TestRunner_StartBlockingTimeoutKeepsRealRun(t *testing.T) {
	gate := make(chan struct{})
	work := func(in int) int { <-gate; return in }
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(work, testutil.Cases(2, "c")...)).
		Build()

	r := New()
	state := r.StartBlocking(context.Background(), cfg, 20*time.Millisecond)
	assert.Equal(t, core.RunError, state.Status)
	assert.Contains(t, state.Error, "did not finish")
	assert.Nil(t, state.Metrics)

	live, err := r.Status(state.ID)
	require.NoError(t, err)
	assert.False(t, live.Status.Terminal())

	close(gate)
	final, err := r.Wait(context.Background(), state.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, final.Status)
	assert.Len(t, final.Results, 2)
}

func TestRunner_SourceLoadFailure(t *testing.T) {
	sink := testutil.NewSink("rec")
	cfg := core.NewRunConfig().
		AddSource(&testutil.Source{Err: testutil.ErrBoom}).
		AddSink(sink).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	assert.Equal(t, core.RunError, state.Status)
	assert.Contains(t, state.Error, "boom")
	assert.Equal(t, []core.EventType{core.EventFailed}, sink.Types())
}

func TestRunner_ReporterInitFailure(t *testing.T) {
	rep := &testutil.Reporter{InitErr: testutil.ErrBoom}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(testutil.Echo, testutil.Cases(2, "c")...)).
		AddReporter(rep).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	assert.Equal(t, core.RunError, state.Status)
	assert.Empty(t, state.Results)
	assert.Nil(t, state.Metrics)
}

func TestRunner_FailingSinksAndReportersDoNotAffectRun(t *testing.T) {
	healthy := testutil.NewSink("healthy")
	panicky := testutil.NewSink("panicky")
	panicky.Panic = true
	badInit := testutil.NewSink("bad-init")
	badInit.InitErr = testutil.ErrBoom
	rep := &testutil.Reporter{PanicResult: true}

	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(testutil.Echo, testutil.Cases(5, "c")...)).
		AddSink(panicky, badInit, healthy).
		AddReporter(rep).
		Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	assert.Len(t, state.Results, 5)
	assert.Len(t, healthy.Events(), 7)
	assert.Empty(t, badInit.Events())
	assert.NotNil(t, rep.Finalized())
}

func TestRunner_SetupFailure(t *testing.T) {
	src := source(func(in, shared any) any { return in }, testutil.Cases(3, "c")...)
	src.Suite.Setup = func(context.Context) (any, error) { return nil, testutil.ErrBoom }
	cfg := core.NewRunConfig().WithJudge(testutil.ConstJudge("j", core.Bool(true))).AddSource(src).Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	require.Len(t, state.Results, 3)
	for _, r := range state.Results {
		assert.Equal(t, pipeline.StageSetup, r.Stage)
		assert.Contains(t, r.Error, "setup failed")
	}
}

func TestRunner_SharedContextAndHistory(t *testing.T) {
	var setups int32
	src := &testutil.Source{Suite: core.Suite{
		Setup: func(context.Context) (any, error) {
			atomic.AddInt32(&setups, 1)
			return "prefix:", nil
		},
		Work: func(ctx context.Context, in any, shared any, history []core.Exchange) (string, error) {
			return fmt.Sprintf("%s%v/%d", shared, in, len(history)), nil
		},
		Cases: []core.Case{
			testutil.NewCase("a").Criteria("prefix:a/0").Build(),
			testutil.NewTurns("x", "y", "z").Criteria("prefix:z/2").Build(),
		},
	}}
	cfg := core.NewRunConfig().WithJudge(testutil.EqualsJudge()).AddSource(src).Build()

	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Equal(t, core.RunCompleted, state.Status)
	assert.Equal(t, 2, state.Metrics.Passed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&setups))
}

func TestRunner_Store(t *testing.T) {
	withExperiment := &testutil.Store{}
	cfg := core.NewRunConfig().
		WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(testutil.Echo, testutil.Cases(2, "c")...)).
		WithStore(withExperiment).
		WithExperiment(core.Experiment{Name: "baseline"}).
		Build()
	state := New().StartBlocking(context.Background(), cfg, waitFor)
	require.Len(t, withExperiment.Saved(), 1)
	saved := withExperiment.Saved()[0]
	assert.Equal(t, state.ID, saved.ID)
	assert.Equal(t, core.RunCompleted, saved.Status)
	assert.NotNil(t, saved.Metrics)

	noExperiment := &testutil.Store{}
	cfg.Store = noExperiment
	cfg.Experiment = core.Experiment{}
	New().StartBlocking(context.Background(), cfg, waitFor)
	assert.Empty(t, noExperiment.Saved())

	failing := &testutil.Store{Err: testutil.ErrBoom}
	cfg.Store = failing
	cfg.Experiment = core.Experiment{Name: "x"}
	state = New().StartBlocking(context.Background(), cfg, waitFor)
	assert.Equal(t, core.RunCompleted, state.Status)
	assert.Len(t, failing.Saved(), 1)
}

func TestRunner_StatusNotFound(t *testing.T) {
	r := New()
	_, err := r.Status("nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, r.Cancel("nope"), ErrRunNotFound)
	_, err = r.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRunner_ListActiveAndPrune(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	reg := NewRegistry()
	r1 := New(func(o *Options) { o.Registry = reg })
	r2 := New(func(o *Options) { o.Registry = reg })
	assert.Same(t, reg, r2.Registry())

	judge := testutil.ConstJudge("j", core.Bool(true))
	done := r1.StartBlocking(context.Background(), core.NewRunConfig().WithJudge(judge).
		AddSource(source(testutil.Echo, testutil.Cases(1, "c")...)).Build(), waitFor)
	blockedID := r2.Start(context.Background(), core.NewRunConfig().WithJudge(judge).
		AddSource(source(func(in int) int { <-gate; return in }, testutil.Cases(1, "c")...)).Build())

	list := r1.ListActive()
	require.Len(t, list, 2)
	assert.Equal(t, blockedID, list[0].ID)
	assert.Equal(t, done.ID, list[1].ID)

	assert.Equal(t, 1, r1.Prune(0))
	_, err := r1.Status(done.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Equal(t, 1, reg.Len())
}

func TestRunner_MultipleRunsIndependent(t *testing.T) {
	r := New()
	judge := testutil.ConstJudge("j", core.Bool(true))
	var wg sync.WaitGroup
	states := make([]*core.RunState, 5)
	for i := range states {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := core.NewRunConfig().WithJudge(judge).AddSource(source(testutil.Echo, testutil.Cases(i+1, "c")...)).Build()
			states[i] = r.StartBlocking(context.Background(), cfg, waitFor)
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, s := range states {
		assert.Equal(t, core.RunCompleted, s.Status)
		assert.Len(t, s.Results, i+1)
		ids[s.ID] = true
	}
	assert.Len(t, ids, 5)
}

func TestRunner_StartBlockingContextDone(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := core.NewRunConfig().WithJudge(testutil.ConstJudge("j", core.Bool(true))).
		AddSource(source(func(in int) int { <-gate; return in }, testutil.Cases(1, "c")...)).Build()
	state := New().StartBlocking(ctx, cfg, 0)
	assert.Equal(t, core.RunError, state.Status)
	assert.Contains(t, state.Error, "context canceled")
}

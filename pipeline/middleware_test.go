package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"
)

func fastRetry(attempts uint) func(o *RetryOptions) {
	return func(o *RetryOptions) {
		o.MaxAttempts = attempts
		o.InitialInterval = time.Millisecond
		o.MaxInterval = 2 * time.Millisecond
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var calls int32
	next := func(context.Context) (core.Outcome, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return core.Outcome{}, testutil.ErrBoom
		}
		return core.Outcome{Response: "ok"}, nil
	}

	out, err := Retry(fastRetry(5))(context.Background(), core.EvalContext{}, next)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Response)
	assert.EqualValues(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	next := func(context.Context) (core.Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return core.Outcome{}, stageErr(StageJudge, "j", testutil.ErrBoom)
	}

	_, err := Retry(fastRetry(2))(context.Background(), core.EvalContext{}, next)
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.Equal(t, StageJudge, StageOf(err, ""))
	assert.EqualValues(t, 2, calls)
}

func TestRetry_PermanentErrors(t *testing.T) {
	var calls int32
	notRetryable := errors.New("bad request")
	next := func(context.Context) (core.Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return core.Outcome{}, notRetryable
	}
	mw := Retry(fastRetry(5), func(o *RetryOptions) {
		o.RetryIf = func(err error) bool { return !errors.Is(err, notRetryable) }
	})

	_, err := mw(context.Background(), core.EvalContext{}, next)
	assert.ErrorIs(t, err, notRetryable)
	assert.EqualValues(t, 1, calls)
}

func TestRetry_InPipeline(t *testing.T) {
	var calls int32
	flaky := &testutil.Judge{JudgeName: "flaky", Fn: func(context.Context, core.JudgeRequest) (core.Judgment, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return core.Judgment{}, testutil.ErrBoom
		}
		return core.Judgment{Verdict: core.Bool(true)}, nil
	}}
	e := NewExecutor(Config{Middleware: []core.Middleware{Retry(fastRetry(3))}})
	res := e.ExecuteCase(context.Background(), "run", unit(testutil.NewCase("x").Build(), testutil.Echo, flaky))

	assert.Equal(t, core.StatusPassed, res.Status)
	assert.EqualValues(t, 2, calls)
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(rate.Inf, 1)
	out, err := mw(context.Background(), core.EvalContext{}, func(context.Context) (core.Outcome, error) {
		return core.Outcome{Response: 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Response)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := RateLimit(rate.Every(time.Hour), 1)
	_, _ = slow(context.Background(), core.EvalContext{}, func(context.Context) (core.Outcome, error) { return core.Outcome{}, nil })
	_, err = slow(ctx, core.EvalContext{}, func(context.Context) (core.Outcome, error) { return core.Outcome{}, nil })
	assert.ErrorContains(t, err, "rate limit")
}

func TestCache(t *testing.T) {
	mw, err := Cache(16)
	require.NoError(t, err)

	var calls int32
	next := func(context.Context) (core.Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return core.Outcome{Response: "r"}, nil
	}
	ec := core.EvalContext{Input: "q", Criteria: "c"}

	for range 3 {
		out, err := mw(context.Background(), ec, next)
		require.NoError(t, err)
		assert.Equal(t, "r", out.Response)
	}
	assert.EqualValues(t, 1, calls)

	// different criteria is a different key
	_, _ = mw(context.Background(), core.EvalContext{Input: "q", Criteria: "other"}, next)
	assert.EqualValues(t, 2, calls)

	// int 1 and string "1" do not collide
	_, _ = mw(context.Background(), core.EvalContext{Input: 1, Criteria: "c"}, next)
	_, _ = mw(context.Background(), core.EvalContext{Input: "1", Criteria: "c"}, next)
	assert.EqualValues(t, 4, calls)
}

func TestCache_Scope(t *testing.T) {
	var calls int32
	next := func(context.Context) (core.Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return core.Outcome{Response: "r"}, nil
	}

	mw, err := Cache(16)
	require.NoError(t, err)
	for _, ec := range []core.EvalContext{
		{RunID: "run-1", Source: "a", Input: "q", Criteria: "c"},
		{RunID: "run-1", Source: "b", Input: "q", Criteria: "c"},
		{RunID: "run-2", Source: "a", Input: "q", Criteria: "c"},
		{RunID: "run-1", Source: "a", Input: "q", Criteria: "c"},
	} {
		_, err := mw(context.Background(), ec, next)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, calls)

	atomic.StoreInt32(&calls, 0)
	shared, err := Cache(16, func(o *CacheOptions) { o.Scope = "gpt-4o/prompt" })
	require.NoError(t, err)
	for _, run := range []string{"run-1", "run-2"} {
		_, err := shared(context.Background(), core.EvalContext{RunID: run, Source: "a", Input: "q", Criteria: "c"}, next)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, calls)
}

func TestCache_DoesNotCacheErrors(t *testing.T) {
	mw, err := Cache(4)
	require.NoError(t, err)

	var calls int32
	next := func(context.Context) (core.Outcome, error) {
		atomic.AddInt32(&calls, 1)
		return core.Outcome{}, testutil.ErrBoom
	}
	for range 2 {
		_, err := mw(context.Background(), core.EvalContext{Input: "q"}, next)
		assert.Error(t, err)
	}
	assert.EqualValues(t, 2, calls)

	_, err = Cache(0)
	assert.Error(t, err)
}

func TestLoggingAndTracing_PassThrough(t *testing.T) {
	e := NewExecutor(Config{Middleware: []core.Middleware{
		Logging(nil),
		Tracing(func(o *TracingOptions) { o.TracerProvider = noop.NewTracerProvider() }),
	}})
	res := e.ExecuteCase(context.Background(), "run", unit(testutil.NewCase("a").Criteria("a").Build(), testutil.Echo, testutil.EqualsJudge()))
	assert.Equal(t, core.StatusPassed, res.Status)

	res = e.ExecuteCase(context.Background(), "run", unit(testutil.NewCase("a").Build(), testutil.Echo, testutil.FailingJudge("j", testutil.ErrBoom)))
	assert.Equal(t, core.StatusError, res.Status)
	assert.Equal(t, StageJudge, res.Stage)
}

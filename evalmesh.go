// Package evalmesh provides a high-level façade over the run orchestrator
// for evaluating work functions (typically LLM-backed) against a set of
// cases with pluggable judges. Most applications interact with this package
// by:
//  1. Creating an EvalMesh via New()
//  2. Building a run configuration with NewRunConfig() (sources, judge,
//     processors, middleware, sinks, reporters, store)
//  3. Running it synchronously (Run), asynchronously (RunAsync) or as an
//     event stream (Stream)
//
// The façade delegates orchestration to runner.Runner while keeping setup
// and usage ergonomics concise.
package evalmesh

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/broadcast"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/runner"
)

// Re-exported types for callers that only import the façade.
type (
	Case       = core.Case
	Turns      = core.Turns
	Suite      = core.Suite
	RunConfig  = core.RunConfig
	RunState   = core.RunState
	Result     = core.Result
	Experiment = core.Experiment
	Event      = core.Event
)

// NewRunConfig returns a run configuration builder preloaded with defaults.
func NewRunConfig() *core.Builder { return core.NewRunConfig() }

// Options configures the EvalMesh instance.
type Options struct {
	// Registry indexes runs; share one to observe runs across instances.
	Registry *runner.Registry
	// Retention is how long finished runs stay queryable.
	Retention time.Duration
	// StreamBuffer is the channel capacity used by Stream.
	StreamBuffer int
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// EvalMesh is the high-level façade aggregating the runner.
type EvalMesh struct {
	opts   Options
	runner *runner.Runner
}

// New creates a new EvalMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *EvalMesh {
	opts := Options{
		Retention:    runner.DefaultRetention,
		StreamBuffer: 256,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 256
	}

	r := runner.New(func(o *runner.Options) {
		o.Registry = opts.Registry
		o.Retention = opts.Retention
		o.Logger = opts.Logger
	})
	return &EvalMesh{opts: opts, runner: r}
}

// Runner exposes the underlying orchestrator.
func (m *EvalMesh) Runner() *runner.Runner { return m.runner }

// RunAsync starts a run and returns its id.
func (m *EvalMesh) RunAsync(ctx context.Context, cfg core.RunConfig) string {
	return m.runner.Start(ctx, cfg)
}

// Run starts a run and waits for its terminal state. When ctx is done first
// the run keeps going and ctx's error is returned with the run id.
func (m *EvalMesh) Run(ctx context.Context, cfg core.RunConfig) (*core.RunState, error) {
	id := m.runner.Start(ctx, cfg)
	state, err := m.runner.Wait(ctx, id)
	if err != nil {
		return &core.RunState{ID: id}, err
	}
	return state, nil
}

// RunWithTimeout waits at most timeout and returns a synthesized error
// snapshot if the run is still going.
func (m *EvalMesh) RunWithTimeout(ctx context.Context, cfg core.RunConfig, timeout time.Duration) *core.RunState {
	return m.runner.StartBlocking(ctx, cfg, timeout)
}

// Stream starts a run and returns its lifecycle events. The channel is
// closed once the run is terminal, right after the terminal event when that
// event was delivered. Events that do not fit into the buffer while the
// reader lags are held back until ctx is done; after that they are dropped
// but the channel is still closed when the run ends.
func (m *EvalMesh) Stream(ctx context.Context, cfg core.RunConfig) (string, <-chan core.Event) {
	s := &stream{ch: make(chan core.Event, m.opts.StreamBuffer)}
	sink := broadcast.NewFuncSink("stream", func(_ context.Context, ev core.Event) error {
		return s.send(ctx, ev)
	})
	cfg.Sinks = append(append([]core.Sink(nil), cfg.Sinks...), sink)

	id := m.runner.Start(ctx, cfg)
	go func() {
		_, _ = m.runner.Wait(context.Background(), id)
		s.close()
	}()
	return id, s.ch
}

// stream guards the event channel so the sink and the run watcher can both
// close it.
type stream struct {
	mu     sync.Mutex
	ch     chan core.Event
	closed bool
}

func (s *stream) send(ctx context.Context, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var err error
	if err = ctx.Err(); err == nil {
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if ev.Type.Terminal() {
		s.closed = true
		close(s.ch)
	}
	return err
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Status returns a snapshot of a run.
func (m *EvalMesh) Status(id string) (*core.RunState, error) { return m.runner.Status(id) }

// Cancel requests cooperative cancellation of a run.
func (m *EvalMesh) Cancel(id string) error { return m.runner.Cancel(id) }

// ListActive returns every run still indexed, non-terminal runs first.
func (m *EvalMesh) ListActive() []*core.RunState { return m.runner.ListActive() }

package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/evalmesh/broadcast"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/metrics"
	"github.com/hupe1980/evalmesh/pipeline"
)

// ErrRunNotFound is returned for unknown (or pruned) run ids.
var ErrRunNotFound = errors.New("run not found")

const (
	// DefaultRetention is how long terminal runs stay in the registry.
	DefaultRetention = time.Hour
	// DefaultCloseTimeout bounds how long finalization waits for sinks to
	// drain their queues.
	DefaultCloseTimeout = 5 * time.Second
)

// Options holds dependency and configuration overrides passed to New().
type Options struct {
	// Registry indexes runs. Defaults to a fresh registry per runner.
	Registry *Registry
	// Retention evicts terminal runs older than this whenever a run starts.
	// Zero means DefaultRetention; a negative value disables eviction.
	Retention time.Duration
	// SinkQueueSize is the per-sink event buffer of each run's broadcaster.
	SinkQueueSize int
	// CloseTimeout bounds the wait for sinks at the end of a run.
	CloseTimeout time.Duration
	// Logger receives runner, executor and broadcaster logs.
	Logger logging.Logger
}

// Runner coordinates evaluation runs. Public methods are safe for
// concurrent use.
type Runner struct {
	registry *Registry
	opts     Options
	logger   logging.Logger
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Retention:     DefaultRetention,
		SinkQueueSize: broadcast.DefaultQueueSize,
		CloseTimeout:  DefaultCloseTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	return &Runner{registry: opts.Registry, opts: opts, logger: logging.OrNoOp(opts.Logger)}
}

// Registry returns the run index used by this runner.
func (r *Runner) Registry() *Registry { return r.registry }

// Start launches a run and returns its id immediately. The run is detached
// from ctx cancellation but keeps its values. Configuration problems are
// not rejected here; they surface as error results or a failed run.
func (r *Runner) Start(ctx context.Context, cfg core.RunConfig) string {
	if r.opts.Retention >= 0 {
		r.registry.Prune(r.opts.Retention)
	}

	cfg = cfg.Normalize()
	id := core.NewID()
	base := context.WithoutCancel(ctx)
	dispatchCtx, cancel := context.WithCancel(base)

	h := newHandle(&core.RunState{
		ID:         id,
		Status:     core.RunPending,
		Experiment: cfg.Experiment,
		StartedAt:  time.Now().UTC(),
		Config:     cfg,
	}, cancel)
	r.registry.add(id, h)

	go r.execute(base, dispatchCtx, h, cfg)
	return id
}

// StartBlocking starts a run and waits until it is terminal. When timeout
// is positive and elapses first, or ctx is done, a synthesized error
// snapshot is returned and the run keeps executing; its real outcome stays
// available through Status.
func (r *Runner) StartBlocking(ctx context.Context, cfg core.RunConfig, timeout time.Duration) *core.RunState {
	id := r.Start(ctx, cfg)
	h, _ := r.registry.get(id)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-h.done:
		return h.snapshot()
	case <-expired:
		return synthesize(h.snapshot(), fmt.Sprintf("run did not finish within %s", timeout))
	case <-ctx.Done():
		return synthesize(h.snapshot(), fmt.Sprintf("stopped waiting for run: %v", ctx.Err()))
	}
}

func synthesize(s *core.RunState, msg string) *core.RunState {
	s.Status = core.RunError
	s.Error = msg
	s.Metrics = nil
	s.FinishedAt = time.Now().UTC()
	return s
}

// Wait blocks until the run is terminal or ctx is done.
func (r *Runner) Wait(ctx context.Context, id string) (*core.RunState, error) {
	h, ok := r.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	select {
	case <-h.done:
		return h.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns a snapshot of the run.
func (r *Runner) Status(id string) (*core.RunState, error) {
	h, ok := r.registry.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return h.snapshot(), nil
}

// ListActive returns snapshots of every indexed run, non-terminal runs
// first.
func (r *Runner) ListActive() []*core.RunState { return r.registry.Snapshots() }

// Cancel requests cooperative cancellation. Cancelling a terminal run is a
// no-op.
func (r *Runner) Cancel(id string) error {
	h, ok := r.registry.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if !h.terminal() {
		h.requestCancel()
	}
	return nil
}

// Prune evicts terminal runs that finished more than olderThan ago.
func (r *Runner) Prune(olderThan time.Duration) int { return r.registry.Prune(olderThan) }

// run carries the per-run collaborators through execute.
type run struct {
	id       string
	cfg      core.RunConfig
	h        *handle
	bc       *broadcast.Broadcaster
	exec     *pipeline.Executor
	logger   logging.Logger
	progress core.Progress
}

func (r *Runner) execute(ctx, dispatchCtx context.Context, h *handle, cfg core.RunConfig) {
	rn := &run{
		id:     h.state.ID,
		cfg:    cfg,
		h:      h,
		logger: r.runLogger(),
	}
	rn.bc = broadcast.New(cfg.Sinks, func(o *broadcast.Options) {
		o.QueueSize = r.opts.SinkQueueSize
		o.Logger = rn.logger
	})
	rn.exec = pipeline.NewExecutor(pipeline.ConfigFrom(cfg), func(o *pipeline.Options) { o.Logger = rn.logger })

	h.transition(core.RunRunning)

	units, err := expand(ctx, cfg)
	info := core.RunInfo{RunID: rn.id, Total: len(units), Experiment: cfg.Experiment, StartedAt: h.snapshot().StartedAt}
	h.update(func(s *core.RunState) { s.Total = len(units) })
	rn.progress.Total = len(units)

	if skipped := rn.bc.Init(ctx, info); len(skipped) > 0 {
		rn.logger.Warn("run.sinks_skipped", "run_id", rn.id, "sinks", skipped)
	}
	if err == nil {
		err = initReporters(ctx, cfg.Reporters, info)
	}
	if err != nil {
		r.finalize(ctx, rn, nil, err)
		return
	}

	started := core.NewEvent(rn.id, core.EventStarted)
	started.Status = core.RunRunning
	started.Total = info.Total
	started.StartedAt = info.StartedAt
	started.Experiment = &info.Experiment
	rn.bc.Publish(started)
	rn.logger.Info("run.started", "run_id", rn.id, "total", info.Total, "parallel", cfg.Parallel, "concurrency", cfg.Concurrency)

	results := make(chan core.Result)
	go r.dispatch(ctx, dispatchCtx, rn, units, results)
	var collected []core.Result
	for res := range results {
		collected = append(collected, res)
		rn.record(ctx, res)
	}
	r.finalize(ctx, rn, collected, nil)
}

// dispatch runs every unit and closes out when all dispatched units have
// produced a result. Dispatch stops once dispatchCtx is cancelled.
func (r *Runner) dispatch(ctx, dispatchCtx context.Context, rn *run, units []unit, out chan<- core.Result) {
	defer close(out)

	if !rn.cfg.Parallel {
		for _, u := range units {
			if dispatchCtx.Err() != nil {
				return
			}
			out <- rn.runUnit(ctx, u)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(rn.cfg.Concurrency)
	for _, u := range units {
		if dispatchCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up after cancellation; such units are skipped.
			if dispatchCtx.Err() != nil {
				return nil
			}
			out <- rn.runUnit(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
}

// runUnit executes one unit under the per-unit timeout. A timed out unit
// releases its slot at once, but the goroutine running it only ends when the
// work function returns. Work that ignores ctx can outlive the run; its late
// result is logged and discarded.
func (rn *run) runUnit(ctx context.Context, u unit) core.Result {
	start := time.Now()
	if u.setupErr != nil {
		res := core.ErrorResult(u.Case, u.Index, pipeline.StageSetup, u.setupErr, 0)
		res.Source = u.Source
		return res
	}

	uctx, cancel := context.WithTimeout(ctx, rn.cfg.Timeout)
	defer cancel()

	done := make(chan core.Result, 1)
	go func() { done <- rn.exec.ExecuteCase(uctx, rn.id, u.Unit) }()

	select {
	case res := <-done:
		return res
	case <-uctx.Done():
		rn.logger.Warn("unit.timeout", "run_id", rn.id, "index", u.Index, "timeout", rn.cfg.Timeout)
		res := core.ErrorResult(u.Case, u.Index, pipeline.StageTimeout,
			fmt.Errorf("unit timed out after %s", rn.cfg.Timeout), time.Since(start))
		res.Source = u.Source
		go rn.discardLate(u.Index, done)
		return res
	}
}

func (rn *run) discardLate(index int, done <-chan core.Result) {
	res := <-done
	rn.logger.Warn("unit.late_result", "run_id", rn.id, "index", index, "status", string(res.Status))
}

// record appends one result, notifies reporters and emits progress.
func (rn *run) record(ctx context.Context, res core.Result) {
	rn.h.update(func(s *core.RunState) { s.Results = append(s.Results, res) })

	p := &rn.progress
	p.Completed++
	switch res.Status {
	case core.StatusPassed:
		p.Passed++
	case core.StatusFailed:
		p.Failed++
	case core.StatusEvaluated:
		p.Evaluated++
	case core.StatusError:
		p.Errored++
	}
	if p.Total > 0 {
		p.Percent = util.Round(float64(p.Completed)/float64(p.Total)*100, 2)
	}

	for _, rep := range rn.cfg.Reporters {
		if err := safeCall(func() error { return rep.OnResult(ctx, res) }); err != nil {
			rn.logger.Warn("reporter.result_failed", "run_id", rn.id, "index", res.Index, "error", err.Error())
		}
	}

	ev := core.NewEvent(rn.id, core.EventProgress)
	ev.Status = core.RunRunning
	snapshot := *p
	ev.Progress = &snapshot
	ev.Result = &res
	rn.bc.Publish(ev)
}

// finalize runs the terminal sequence shared by every outcome: terminal
// event, reporters, store, then the status is frozen.
func (r *Runner) finalize(ctx context.Context, rn *run, results []core.Result, runErr error) {
	state := rn.h.snapshot()
	state.FinishedAt = time.Now().UTC()

	var ev core.Event
	switch {
	case runErr != nil:
		state.Status = core.RunError
		state.Error = runErr.Error()
		ev = core.NewEvent(rn.id, core.EventFailed)
		ev.Error = state.Error
	case rn.h.cancelled() && len(results) < state.Total:
		state.Status = core.RunCancelled
		ev = core.NewEvent(rn.id, core.EventCancelled)
		snapshot := rn.progress
		ev.Progress = &snapshot
	default:
		state.Status = core.RunCompleted
		state.Metrics = metrics.Compute(state.Results)
		ev = core.NewEvent(rn.id, core.EventCompleted)
		ev.Metrics = state.Metrics
	}
	ev.Status = state.Status
	ev.Experiment = &state.Experiment
	rn.bc.Publish(ev)

	for _, rep := range rn.cfg.Reporters {
		if err := safeCall(func() error { return rep.Finalize(ctx, state.Clone()) }); err != nil {
			rn.logger.Warn("reporter.finalize_failed", "run_id", rn.id, "error", err.Error())
		}
	}

	if st := rn.cfg.Store; st != nil && state.Status == core.RunCompleted && !state.Experiment.IsZero() {
		if err := safeCall(func() error { return st.Save(ctx, state.Clone()) }); err != nil {
			rn.logger.Error("store.save_failed", "run_id", rn.id, "error", err.Error())
		}
	}

	closeCtx, cancel := context.WithTimeout(ctx, r.opts.CloseTimeout)
	defer cancel()
	if err := rn.bc.Close(closeCtx); err != nil {
		rn.logger.Warn("sink.close_timeout", "run_id", rn.id, "error", err.Error())
	}

	rn.h.update(func(s *core.RunState) {
		s.Status = state.Status
		s.Error = state.Error
		s.Metrics = state.Metrics
		s.FinishedAt = state.FinishedAt
	})
	rn.h.cancel()
	close(rn.h.done)

	if el, ok := rn.logger.(*logging.EvalLogger); ok {
		el.WithRun(rn.id).LogRun(string(state.Status), state.Total, len(state.Results), state.Duration(), runErr)
	} else {
		rn.logger.Info("run.finished", "run_id", rn.id, "status", string(state.Status), "results", len(state.Results))
	}
}

func (r *Runner) runLogger() logging.Logger {
	if el, ok := r.logger.(*logging.EvalLogger); ok {
		return el.WithComponent("runner")
	}
	return r.logger
}

func initReporters(ctx context.Context, reporters []core.Reporter, info core.RunInfo) error {
	for i, rep := range reporters {
		if err := safeCall(func() error { return rep.Init(ctx, info) }); err != nil {
			return fmt.Errorf("init reporter %d: %w", i, err)
		}
	}
	return nil
}

// safeCall invokes fn and converts a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// unit is a pipeline unit plus a deferred setup failure.
type unit struct {
	pipeline.Unit
	setupErr error
}

// expand loads every source and flattens its cases into units. Work
// functions are adapted once per source and setup runs once per source.
func expand(ctx context.Context, cfg core.RunConfig) ([]unit, error) {
	var units []unit
	for i, src := range cfg.Sources {
		if src == nil {
			continue
		}
		var suite core.Suite
		err := safeCall(func() error {
			var err error
			suite, err = src.Load(ctx)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load source %d: %w", i, err)
		}

		name := suite.Name
		if name == "" {
			name = fmt.Sprintf("source-%d", i)
		}
		work := core.AdaptWorkFunc(suite.Work)
		judge := cfg.Judge
		if suite.Judge != nil {
			judge = suite.Judge
		}
		params := maps.Clone(cfg.JudgeParams)
		if len(suite.JudgeParams) > 0 {
			if params == nil {
				params = make(map[string]any, len(suite.JudgeParams))
			}
			maps.Copy(params, suite.JudgeParams)
		}

		var shared any
		var setupErr error
		if suite.Setup != nil && len(suite.Cases) > 0 {
			if err := safeCall(func() error {
				var err error
				shared, err = suite.Setup(ctx)
				return err
			}); err != nil {
				setupErr = fmt.Errorf("setup failed: %w", err)
			}
		}

		for _, c := range suite.Cases {
			units = append(units, unit{
				Unit: pipeline.Unit{
					Index:       len(units),
					Source:      name,
					Case:        c,
					Work:        work,
					Shared:      shared,
					Judge:       judge,
					JudgeParams: params,
				},
				setupErr: setupErr,
			})
		}
	}
	return units, nil
}

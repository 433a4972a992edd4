package pipeline

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// Unit is one case bound to the collaborators that execute it. Units are
// built by the runner when it expands case sources.
type Unit struct {
	Index       int
	Source      string
	Case        core.Case
	Work        core.WorkFunc
	Shared      any
	Judge       core.Judge
	JudgeParams map[string]any
}

// Config holds the ordered processor and middleware chains.
type Config struct {
	PreProcessors      []core.PreProcessor
	ResponseProcessors []core.ResponseProcessor
	ResultProcessors   []core.ResultProcessor
	Middleware         []core.Middleware
}

// ConfigFrom extracts the pipeline chains from a run configuration.
func ConfigFrom(rc core.RunConfig) Config {
	return Config{
		PreProcessors:      rc.PreProcessors,
		ResponseProcessors: rc.ResponseProcessors,
		ResultProcessors:   rc.ResultProcessors,
		Middleware:         rc.Middleware,
	}
}

// Options configure an Executor.
type Options struct {
	Logger logging.Logger
}

// Executor runs units through the pipeline. It holds no per-unit state and
// is safe for concurrent use.
type Executor struct {
	cfg    Config
	logger logging.Logger
}

// NewExecutor creates an Executor for the given chains.
func NewExecutor(cfg Config, optFns ...func(o *Options)) *Executor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{cfg: cfg, logger: logging.OrNoOp(opts.Logger)}
}

// ExecuteCase runs one unit and always returns exactly one result.
func (e *Executor) ExecuteCase(ctx context.Context, runID string, u Unit) (res core.Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			e.logger.Error("unit.panic", "run_id", runID, "index", u.Index, "error", err.Error())
			res = e.errorResult(u, StagePanic, err, time.Since(start))
		}
	}()

	ec := core.EvalContext{
		RunID:    runID,
		Index:    u.Index,
		Source:   u.Source,
		Input:    u.Case.Input,
		Criteria: u.Case.Criteria,
		Category: u.Case.Category,
		Metadata: u.Case.Metadata,
	}

	next := core.Next(func(ctx context.Context) (core.Outcome, error) {
		return e.run(ctx, u)
	})
	for i := len(e.cfg.Middleware) - 1; i >= 0; i-- {
		mw, inner := e.cfg.Middleware[i], next
		if mw == nil {
			continue
		}
		next = func(ctx context.Context) (core.Outcome, error) {
			return mw(ctx, ec, inner)
		}
	}

	out, err := next(ctx)
	if err != nil {
		return e.errorResult(u, StageOf(err, StageMiddleware), err, time.Since(start))
	}
	return e.finalResult(u, out, time.Since(start))
}

// run executes stages 1-5.
func (e *Executor) run(ctx context.Context, u Unit) (core.Outcome, error) {
	input, err := e.preProcess(ctx, u.Case.Input)
	if err != nil {
		return core.Outcome{}, err
	}

	response, err := e.work(ctx, u, input)
	if err != nil {
		return core.Outcome{}, err
	}

	for _, p := range e.cfg.ResponseProcessors {
		if response, err = p.ProcessResponse(ctx, response); err != nil {
			return core.Outcome{}, stageErr(StageResponse, p.Name(), err)
		}
	}

	if u.Judge == nil {
		return core.Outcome{}, stageErr(StageJudge, "", core.ErrNoJudge)
	}
	j, err := u.Judge.Judge(ctx, core.JudgeRequest{
		Response: response,
		Criteria: u.Case.Criteria,
		Params:   u.JudgeParams,
		Input:    input,
		Metadata: u.Case.Metadata,
	})
	if err != nil {
		return core.Outcome{}, stageErr(StageJudge, u.Judge.Name(), err)
	}
	if j.Verdict.IsZero() {
		return core.Outcome{}, stageErr(StageJudge, u.Judge.Name(), ErrEmptyVerdict)
	}

	for _, p := range e.cfg.ResultProcessors {
		if j, err = p.ProcessResult(ctx, j); err != nil {
			return core.Outcome{}, stageErr(StageResult, p.Name(), err)
		}
	}

	return core.Outcome{Response: response, Judgment: j}, nil
}

// preProcess applies the pre-processor chain to the input, or to each turn
// of a multi-turn input.
func (e *Executor) preProcess(ctx context.Context, input any) (any, error) {
	if len(e.cfg.PreProcessors) == 0 {
		return input, nil
	}
	if turns, ok := input.(core.Turns); ok {
		out := make(core.Turns, len(turns))
		for i, turn := range turns {
			v, err := e.preProcessOne(ctx, turn)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return e.preProcessOne(ctx, input)
}

func (e *Executor) preProcessOne(ctx context.Context, input any) (any, error) {
	var err error
	for _, p := range e.cfg.PreProcessors {
		if input, err = p.PreProcess(ctx, input); err != nil {
			return nil, stageErr(StagePreProcess, p.Name(), err)
		}
	}
	return input, nil
}

// work invokes the work function once, or once per turn with the
// accumulated history for multi-turn input. Only the last output is returned.
func (e *Executor) work(ctx context.Context, u Unit, input any) (any, error) {
	if u.Work == nil {
		return nil, stageErr(StageWork, "", core.ErrNoWorkFunc)
	}

	turns, ok := input.(core.Turns)
	if !ok {
		out, err := u.Work(ctx, input, u.Shared, nil)
		if err != nil {
			return nil, stageErr(StageWork, "", err)
		}
		return out, nil
	}

	var (
		history []core.Exchange
		last    any
	)
	for i, turn := range turns {
		out, err := u.Work(ctx, turn, u.Shared, history)
		if err != nil {
			return nil, stageErr(StageWork, fmt.Sprintf("turn %d", i+1), err)
		}
		history = append(history, core.Exchange{Input: turn, Output: out})
		last = out
	}
	return last, nil
}

func (e *Executor) finalResult(u Unit, out core.Outcome, d time.Duration) core.Result {
	j := out.Judgment
	return core.Result{
		Index:     u.Index,
		Source:    u.Source,
		Status:    core.StatusForVerdict(j.Verdict),
		Input:     u.Case.Input,
		Criteria:  u.Case.Criteria,
		Category:  u.Case.Category,
		Metadata:  mergeMetadata(u.Case.Metadata, j.Metadata),
		Response:  out.Response,
		Judgment:  j.Verdict,
		Reasoning: j.Reasoning,
		Composite: j.Composite,
		Duration:  d,
	}
}

func (e *Executor) errorResult(u Unit, stage string, err error, d time.Duration) core.Result {
	res := core.ErrorResult(u.Case, u.Index, stage, err, d)
	res.Source = u.Source
	return res
}

// mergeMetadata copies judge metadata onto the case metadata without
// overriding case keys.
func mergeMetadata(caseMeta, judgeMeta map[string]any) map[string]any {
	if len(judgeMeta) == 0 {
		return caseMeta
	}
	out := maps.Clone(caseMeta)
	if out == nil {
		out = make(map[string]any, len(judgeMeta))
	}
	for k, v := range judgeMeta {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

package core

import (
	"maps"
	"slices"
	"time"
)

const (
	// DefaultConcurrency bounds parallel units when none is configured.
	DefaultConcurrency = 10
	// DefaultTimeout bounds each unit when none is configured.
	DefaultTimeout = 30 * time.Second
)

// RunConfig is the immutable configuration of a run. Build it with
// NewRunConfig; the runner snapshots it at start.
type RunConfig struct {
	Judge              Judge
	JudgeParams        map[string]any
	Sources            []CaseSource
	PreProcessors      []PreProcessor
	ResponseProcessors []ResponseProcessor
	ResultProcessors   []ResultProcessor
	Middleware         []Middleware
	Concurrency        int
	Timeout            time.Duration
	Parallel           bool
	Sinks              []Sink
	Reporters          []Reporter
	Store              Store
	Experiment         Experiment
}

// Builder assembles a RunConfig through chainable setters.
type Builder struct {
	cfg RunConfig
}

// NewRunConfig returns a builder preloaded with defaults.
func NewRunConfig() *Builder {
	return &Builder{cfg: RunConfig{
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		Parallel:    true,
	}}
}

func (b *Builder) WithJudge(j Judge) *Builder {
	b.cfg.Judge = j
	return b
}

func (b *Builder) WithJudgeParams(params map[string]any) *Builder {
	b.cfg.JudgeParams = maps.Clone(params)
	return b
}

func (b *Builder) AddSource(src ...CaseSource) *Builder {
	b.cfg.Sources = append(b.cfg.Sources, src...)
	return b
}

func (b *Builder) AddPreProcessor(p ...PreProcessor) *Builder {
	b.cfg.PreProcessors = append(b.cfg.PreProcessors, p...)
	return b
}

func (b *Builder) AddResponseProcessor(p ...ResponseProcessor) *Builder {
	b.cfg.ResponseProcessors = append(b.cfg.ResponseProcessors, p...)
	return b
}

func (b *Builder) AddResultProcessor(p ...ResultProcessor) *Builder {
	b.cfg.ResultProcessors = append(b.cfg.ResultProcessors, p...)
	return b
}

// Use appends middleware. The first middleware added is the outermost.
func (b *Builder) Use(mw ...Middleware) *Builder {
	b.cfg.Middleware = append(b.cfg.Middleware, mw...)
	return b
}

func (b *Builder) WithConcurrency(n int) *Builder {
	b.cfg.Concurrency = n
	return b
}

// WithTimeout bounds each unit's wall time. Expiry records an error result
// and frees the slot; work that ignores its context keeps running until it
// returns.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.cfg.Timeout = d
	return b
}

// WithParallel selects between the bounded worker pool (true) and strictly
// sequential execution in source order (false).
func (b *Builder) WithParallel(parallel bool) *Builder {
	b.cfg.Parallel = parallel
	return b
}

func (b *Builder) AddSink(s ...Sink) *Builder {
	b.cfg.Sinks = append(b.cfg.Sinks, s...)
	return b
}

func (b *Builder) AddReporter(r ...Reporter) *Builder {
	b.cfg.Reporters = append(b.cfg.Reporters, r...)
	return b
}

func (b *Builder) WithStore(s Store) *Builder {
	b.cfg.Store = s
	return b
}

func (b *Builder) WithExperiment(e Experiment) *Builder {
	b.cfg.Experiment = e
	return b
}

// Build returns a normalized copy of the configuration. Later builder calls
// do not affect configurations already built.
func (b *Builder) Build() RunConfig {
	return b.cfg.Normalize()
}

// Normalize returns a copy of c with defaults applied and slices detached
// from the caller's.
func (c RunConfig) Normalize() RunConfig {
	out := c
	if out.Concurrency <= 0 {
		out.Concurrency = DefaultConcurrency
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	out.JudgeParams = maps.Clone(c.JudgeParams)
	out.Sources = slices.Clone(c.Sources)
	out.PreProcessors = slices.Clone(c.PreProcessors)
	out.ResponseProcessors = slices.Clone(c.ResponseProcessors)
	out.ResultProcessors = slices.Clone(c.ResultProcessors)
	out.Middleware = slices.Clone(c.Middleware)
	out.Sinks = slices.Clone(c.Sinks)
	out.Reporters = slices.Clone(c.Reporters)
	out.Experiment.Params = maps.Clone(c.Experiment.Params)
	out.Experiment.Tags = slices.Clone(c.Experiment.Tags)
	return out
}

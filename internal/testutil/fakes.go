package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/hupe1980/evalmesh/core"
)

// Judge is a scripted core.Judge.
type Judge struct {
	JudgeName string
	Fn        func(ctx context.Context, req core.JudgeRequest) (core.Judgment, error)
}

var _ core.Judge = (*Judge)(nil)

// ConstJudge always returns v.
func ConstJudge(name string, v core.Verdict) *Judge {
	return &Judge{JudgeName: name, Fn: func(context.Context, core.JudgeRequest) (core.Judgment, error) {
		return core.Judgment{Verdict: v, Reasoning: name + " says " + v.String()}, nil
	}}
}

// FailingJudge always returns err.
func FailingJudge(name string, err error) *Judge {
	return &Judge{JudgeName: name, Fn: func(context.Context, core.JudgeRequest) (core.Judgment, error) {
		return core.Judgment{}, err
	}}
}

// EqualsJudge passes when the response equals the criteria string.
func EqualsJudge() *Judge {
	return &Judge{JudgeName: "equals", Fn: func(_ context.Context, req core.JudgeRequest) (core.Judgment, error) {
		s, _ := req.Response.(string)
		return core.Judgment{Verdict: core.Bool(s == req.Criteria)}, nil
	}}
}

// Name implements core.Judge.
func (j *Judge) Name() string { return j.JudgeName }

// Judge implements core.Judge.
func (j *Judge) Judge(ctx context.Context, req core.JudgeRequest) (core.Judgment, error) {
	return j.Fn(ctx, req)
}

// ErrBoom is a generic failure for tests.
var ErrBoom = errors.New("boom")

// Sink records every event it receives. InitErr makes Init fail; Panic makes
// Handle panic; HandleErr makes Handle return an error after recording.
type Sink struct {
	SinkName  string
	InitErr   error
	Panic     bool
	HandleErr error

	mu     sync.Mutex
	events []core.Event
	inits  int
	done   chan struct{}
}

var _ core.Sink = (*Sink)(nil)

// NewSink creates a recording sink.
func NewSink(name string) *Sink { return &Sink{SinkName: name, done: make(chan struct{})} }

// Name implements core.Sink.
func (s *Sink) Name() string { return s.SinkName }

// Init implements core.Sink.
func (s *Sink) Init(context.Context, core.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return s.InitErr
}

// Handle implements core.Sink.
func (s *Sink) Handle(_ context.Context, ev core.Event) error {
	if s.Panic {
		panic("sink " + s.SinkName + " exploded")
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	if ev.Type.Terminal() && s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
	return s.HandleErr
}

// Events returns a copy of the recorded events.
func (s *Sink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Types returns the recorded event types in order.
func (s *Sink) Types() []core.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.EventType, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

// Inits returns how many times Init was called.
func (s *Sink) Inits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

// Done is closed once a terminal event has been recorded. Only valid for
// sinks created with NewSink.
func (s *Sink) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Reporter records reporter hooks.
type Reporter struct {
	InitErr     error
	ResultErr   error
	PanicResult bool

	mu        sync.Mutex
	info      core.RunInfo
	results   []core.Result
	finalized *core.RunState
}

var _ core.Reporter = (*Reporter)(nil)

// Init implements core.Reporter.
func (r *Reporter) Init(_ context.Context, info core.RunInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
	return r.InitErr
}

// OnResult implements core.Reporter.
func (r *Reporter) OnResult(_ context.Context, res core.Result) error {
	if r.PanicResult {
		panic("reporter exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	return r.ResultErr
}

// Finalize implements core.Reporter.
func (r *Reporter) Finalize(_ context.Context, state *core.RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = state
	return nil
}

// Info returns the RunInfo passed to Init.
func (r *Reporter) Info() core.RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Results returns the results passed to OnResult.
func (r *Reporter) Results() []core.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.results)
}

// Finalized returns the state passed to Finalize, or nil.
func (r *Reporter) Finalized() *core.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Store records saved runs.
type Store struct {
	Err error

	mu    sync.Mutex
	saved []*core.RunState
}

var _ core.Store = (*Store)(nil)

// Save implements core.Store.
func (s *Store) Save(_ context.Context, state *core.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, state)
	return s.Err
}

// Saved returns the saved states.
func (s *Store) Saved() []*core.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.saved)
}

// Logger records the messages it receives.
type Logger struct {
	mu   sync.Mutex
	msgs []string
}

// Debug implements logging.Logger.
func (l *Logger) Debug(msg string, _ ...any) { l.add(msg) }

// Info implements logging.Logger.
func (l *Logger) Info(msg string, _ ...any) { l.add(msg) }

// Warn implements logging.Logger.
func (l *Logger) Warn(msg string, _ ...any) { l.add(msg) }

// Error implements logging.Logger.
func (l *Logger) Error(msg string, _ ...any) { l.add(msg) }

func (l *Logger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

// Messages returns the recorded messages in order.
func (l *Logger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.msgs)
}

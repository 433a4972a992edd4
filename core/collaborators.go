package core

import "context"

// Sink is one broadcaster destination. Sinks are initialized once per run and
// receive every lifecycle event of that run in order. Returned errors and
// panics are contained by the broadcaster.
type Sink interface {
	Name() string
	Init(ctx context.Context, info RunInfo) error
	Handle(ctx context.Context, ev Event) error
}

// Reporter renders a run synchronously in-process. Unlike sinks, reporters
// run on the run's own goroutine and may slow it down.
type Reporter interface {
	Init(ctx context.Context, info RunInfo) error
	OnResult(ctx context.Context, r Result) error
	Finalize(ctx context.Context, state *RunState) error
}

// Store persists finished runs.
type Store interface {
	Save(ctx context.Context, state *RunState) error
}

// RunLoader is implemented by stores that can read runs back.
type RunLoader interface {
	Load(ctx context.Context, id string) (*RunState, error)
	List(ctx context.Context) ([]*RunState, error)
}

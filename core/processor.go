package core

import "context"

// PreProcessor transforms a case input before the work function runs.
type PreProcessor interface {
	Name() string
	PreProcess(ctx context.Context, input any) (any, error)
}

// ResponseProcessor transforms a work-function response before judgment.
type ResponseProcessor interface {
	Name() string
	ProcessResponse(ctx context.Context, response any) (any, error)
}

// ResultProcessor transforms a judgment before it becomes a result.
type ResultProcessor interface {
	Name() string
	ProcessResult(ctx context.Context, j Judgment) (Judgment, error)
}

// EvalContext describes the unit a middleware is wrapping.
type EvalContext struct {
	RunID    string
	Index    int
	Source   string
	Input    any
	Criteria string
	Category string
	Metadata map[string]any
}

// Outcome is what the wrapped pipeline stages produce on success.
type Outcome struct {
	Response any
	Judgment Judgment
}

// Next continues the pipeline from inside a middleware.
type Next func(ctx context.Context) (Outcome, error)

// Middleware wraps the pipeline stages of one unit. It must return the result
// of next or a substitute of the same shape.
type Middleware func(ctx context.Context, ec EvalContext, next Next) (Outcome, error)

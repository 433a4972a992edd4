package core

import "context"

// Case is one evaluation case. Cases are created by a CaseSource and are
// never mutated by the runner.
type Case struct {
	// Input is an arbitrary value, or Turns for a multi-turn case.
	Input any `json:"input" yaml:"input"`
	// Criteria is the judgment instruction.
	Criteria string `json:"criteria" yaml:"criteria"`
	// Category is an optional grouping label used in per-category metrics.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`
	// Metadata is an opaque key/value bag passed through to results.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Turns is an ordered sequence of inputs for a multi-turn case. The work
// function is invoked once per turn; only the last output is judged.
type Turns []any

// IsMultiTurn reports whether the case input is a Turns sequence.
func (c Case) IsMultiTurn() bool {
	_, ok := c.Input.(Turns)
	return ok
}

// Exchange is one completed turn of a multi-turn case, passed to the work
// function as conversation history.
type Exchange struct {
	Input  any `json:"input"`
	Output any `json:"output"`
}

// SetupFunc builds the shared context for a case source. It is invoked once
// per source per run; the value it returns is read-only for every unit.
type SetupFunc func(ctx context.Context) (any, error)

// Suite is what a CaseSource supplies: the cases plus the work function that
// produces the responses under judgment.
type Suite struct {
	// Name labels results produced from this suite.
	Name string
	// Cases are expanded into units in order.
	Cases []Case
	// Work is the work function. Any func accepted by AdaptWorkFunc.
	Work any
	// Setup optionally produces the shared context.
	Setup SetupFunc
	// Judge optionally overrides the run-level judge for this suite.
	Judge Judge
	// JudgeParams optionally overrides the run-level judge parameters.
	JudgeParams map[string]any
	// Metadata describes the suite.
	Metadata map[string]any
}

// CaseSource supplies a Suite when a run starts.
type CaseSource interface {
	Load(ctx context.Context) (Suite, error)
}

package casesource

import (
	"context"
	"slices"

	"github.com/hupe1980/evalmesh/core"
)

var (
	_ core.CaseSource = (*StaticSource)(nil)
	_ core.CaseSource = SourceFunc(nil)
)

// StaticSource returns a fixed suite on every Load.
type StaticSource struct {
	suite core.Suite
}

// Static creates a source for an in-memory suite. The case slice is copied.
func Static(suite core.Suite) *StaticSource {
	suite.Cases = slices.Clone(suite.Cases)
	return &StaticSource{suite: suite}
}

// FromCases is shorthand for a static suite of cases evaluated with work.
func FromCases(name string, work any, cases ...core.Case) *StaticSource {
	return Static(core.Suite{Name: name, Work: work, Cases: cases})
}

func (s *StaticSource) Load(context.Context) (core.Suite, error) {
	suite := s.suite
	suite.Cases = slices.Clone(s.suite.Cases)
	return suite, nil
}

// SourceFunc adapts a function to core.CaseSource.
type SourceFunc func(ctx context.Context) (core.Suite, error)

func (f SourceFunc) Load(ctx context.Context) (core.Suite, error) { return f(ctx) }

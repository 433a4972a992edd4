package testutil

import (
	"context"
	"time"

	"github.com/hupe1980/evalmesh/core"
)

// CaseBuilder provides a fluent helper for constructing cases in tests.
// Example:
//
//	c := NewCase("What is 2+2?").Criteria("answers 4").Category("math").Build()
type CaseBuilder struct {
	c core.Case
}

// NewCase creates a builder for a single-turn case.
func NewCase(input any) *CaseBuilder { return &CaseBuilder{c: core.Case{Input: input}} }

// NewTurns creates a builder for a multi-turn case.
func NewTurns(turns ...any) *CaseBuilder {
	return &CaseBuilder{c: core.Case{Input: core.Turns(turns)}}
}

// Criteria sets the judgment instruction (chainable).
func (b *CaseBuilder) Criteria(c string) *CaseBuilder { b.c.Criteria = c; return b }

// Category sets the category label (chainable).
func (b *CaseBuilder) Category(c string) *CaseBuilder { b.c.Category = c; return b }

// Meta adds a metadata entry (chainable).
func (b *CaseBuilder) Meta(k string, v any) *CaseBuilder {
	if b.c.Metadata == nil {
		b.c.Metadata = map[string]any{}
	}
	b.c.Metadata[k] = v
	return b
}

// Build returns the case.
func (b *CaseBuilder) Build() core.Case { return b.c }

// Cases builds n cases with inputs 0..n-1 and the given criteria.
func Cases(n int, criteria string) []core.Case {
	out := make([]core.Case, n)
	for i := range out {
		out[i] = core.Case{Input: i, Criteria: criteria}
	}
	return out
}

// ResultBuilder constructs results for metrics, reporter and store tests.
type ResultBuilder struct {
	r core.Result
}

// NewResult creates a builder for a passed boolean result.
func NewResult(index int) *ResultBuilder {
	return &ResultBuilder{r: core.Result{Index: index, Status: core.StatusPassed, Judgment: core.Bool(true)}}
}

// Verdict sets the verdict and derives the status from it (chainable).
func (b *ResultBuilder) Verdict(v core.Verdict) *ResultBuilder {
	b.r.Judgment = v
	b.r.Status = core.StatusForVerdict(v)
	return b
}

// Error turns the result into an error result (chainable).
func (b *ResultBuilder) Error(stage, msg string) *ResultBuilder {
	b.r.Status = core.StatusError
	b.r.Judgment = core.Verdict{}
	b.r.Stage = stage
	b.r.Error = msg
	return b
}

// Category sets the category (chainable).
func (b *ResultBuilder) Category(c string) *ResultBuilder { b.r.Category = c; return b }

// Duration sets the duration (chainable).
func (b *ResultBuilder) Duration(d time.Duration) *ResultBuilder { b.r.Duration = d; return b }

// Input sets input and response (chainable).
func (b *ResultBuilder) Input(in, resp any) *ResultBuilder {
	b.r.Input = in
	b.r.Response = resp
	return b
}

// Build returns the result.
func (b *ResultBuilder) Build() core.Result { return b.r }

// Source is a CaseSource returning a fixed suite.
type Source struct {
	Suite core.Suite
	Err   error
}

var _ core.CaseSource = (*Source)(nil)

// Load implements core.CaseSource.
func (s *Source) Load(context.Context) (core.Suite, error) {
	if s.Err != nil {
		return core.Suite{}, s.Err
	}
	return s.Suite, nil
}

// Echo is a work function returning its input.
func Echo(input any) any { return input }

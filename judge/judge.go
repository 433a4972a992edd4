package judge

import (
	"context"
	"errors"
	"maps"

	"github.com/hupe1980/evalmesh/core"
)

var (
	// ErrNoMembers is returned when a composite judge has no members.
	ErrNoMembers = errors.New("composite judge requires at least one member")
	// ErrInvalidWeight is returned for a weighted member with weight <= 0.
	ErrInvalidWeight = errors.New("member weight must be positive")
	// ErrInvalidThreshold is returned for a threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("consensus threshold must be in (0, 1]")
	// ErrMembersFailed is wrapped by composite errors when members fail.
	ErrMembersFailed = errors.New("composite members failed")
	// ErrUnparseable is returned when a model answer has no recognizable verdict.
	ErrUnparseable = errors.New("could not parse judgment")
)

// Func adapts a function to core.Judge.
func Func(name string, fn func(ctx context.Context, req core.JudgeRequest) (core.Judgment, error)) core.Judge {
	return funcJudge{name: name, fn: fn}
}

// Predicate adapts a boolean check of the response to core.Judge.
func Predicate(name string, fn func(response any, criteria string) bool) core.Judge {
	return Func(name, func(_ context.Context, req core.JudgeRequest) (core.Judgment, error) {
		return core.Judgment{Verdict: core.Bool(fn(req.Response, req.Criteria))}, nil
	})
}

type funcJudge struct {
	name string
	fn   func(ctx context.Context, req core.JudgeRequest) (core.Judgment, error)
}

func (f funcJudge) Name() string { return f.name }

func (f funcJudge) Judge(ctx context.Context, req core.JudgeRequest) (core.Judgment, error) {
	return f.fn(ctx, req)
}

// Member is one judge of a composite, with optional parameters layered over
// the request's parameters.
type Member struct {
	Judge  core.Judge
	Params map[string]any
	Weight float64
}

func (m Member) request(req core.JudgeRequest) core.JudgeRequest {
	if len(m.Params) == 0 {
		return req
	}
	params := maps.Clone(req.Params)
	if params == nil {
		params = make(map[string]any, len(m.Params))
	}
	maps.Copy(params, m.Params)
	req.Params = params
	return req
}

package pipeline

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/evalmesh/core"
)

var (
	_ core.PreProcessor      = (*TrimSpace)(nil)
	_ core.ResponseProcessor = (*TrimSpace)(nil)
	_ core.ResponseProcessor = (*Truncate)(nil)
	_ core.ResultProcessor   = (*ScoreThreshold)(nil)
	_ core.ResultProcessor   = (*LabelMap)(nil)
)

// TrimSpace strips leading and trailing whitespace from string inputs and
// responses. Non-string values pass through unchanged.
type TrimSpace struct{}

// Name returns the processor's identifier.
func (TrimSpace) Name() string { return "trim_space" }

// PreProcess implements core.PreProcessor.
func (TrimSpace) PreProcess(_ context.Context, input any) (any, error) {
	return trimString(input), nil
}

// ProcessResponse implements core.ResponseProcessor.
func (TrimSpace) ProcessResponse(_ context.Context, response any) (any, error) {
	return trimString(response), nil
}

func trimString(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

// Truncate caps string responses at Max runes.
type Truncate struct {
	Max int
}

// Name returns the processor's identifier.
func (t Truncate) Name() string { return "truncate" }

// ProcessResponse implements core.ResponseProcessor.
func (t Truncate) ProcessResponse(_ context.Context, response any) (any, error) {
	s, ok := response.(string)
	if !ok || t.Max <= 0 || utf8.RuneCountInString(s) <= t.Max {
		return response, nil
	}
	return string([]rune(s)[:t.Max]), nil
}

// ScoreThreshold converts a numeric verdict into a boolean one: scores at or
// above Threshold pass. The original score is kept in the judgment metadata
// under "score". Other verdict kinds pass through.
type ScoreThreshold struct {
	Threshold float64
}

// Name returns the processor's identifier.
func (s ScoreThreshold) Name() string { return "score_threshold" }

// ProcessResult implements core.ResultProcessor.
func (s ScoreThreshold) ProcessResult(_ context.Context, j core.Judgment) (core.Judgment, error) {
	if j.Verdict.Kind != core.KindNumeric {
		return j, nil
	}
	j.Metadata = withMeta(j.Metadata, "score", j.Verdict.Score)
	j.Verdict = core.Bool(j.Verdict.Score >= s.Threshold)
	return j, nil
}

// LabelMap converts categorical verdicts into boolean ones using a fixed
// table. Unknown labels fail the stage when Strict is set and pass through
// otherwise.
type LabelMap struct {
	Labels map[string]bool
	Strict bool
}

// Name returns the processor's identifier.
func (l LabelMap) Name() string { return "label_map" }

// ProcessResult implements core.ResultProcessor.
func (l LabelMap) ProcessResult(_ context.Context, j core.Judgment) (core.Judgment, error) {
	if j.Verdict.Kind != core.KindCategorical {
		return j, nil
	}
	pass, ok := l.Labels[j.Verdict.Label]
	if !ok {
		if l.Strict {
			return j, fmt.Errorf("unmapped label %q", j.Verdict.Label)
		}
		return j, nil
	}
	j.Metadata = withMeta(j.Metadata, "label", j.Verdict.Label)
	j.Verdict = core.Bool(pass)
	return j, nil
}

func withMeta(m map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	maps.Copy(out, m)
	out[key] = value
	return out
}

// PreFunc adapts a function to core.PreProcessor.
func PreFunc(name string, fn func(ctx context.Context, input any) (any, error)) core.PreProcessor {
	return preFunc{name: name, fn: fn}
}

type preFunc struct {
	name string
	fn   func(ctx context.Context, input any) (any, error)
}

func (p preFunc) Name() string { return p.name }
func (p preFunc) PreProcess(ctx context.Context, input any) (any, error) {
	return p.fn(ctx, input)
}

// ResponseFunc adapts a function to core.ResponseProcessor.
func ResponseFunc(name string, fn func(ctx context.Context, response any) (any, error)) core.ResponseProcessor {
	return responseFunc{name: name, fn: fn}
}

type responseFunc struct {
	name string
	fn   func(ctx context.Context, response any) (any, error)
}

func (p responseFunc) Name() string { return p.name }
func (p responseFunc) ProcessResponse(ctx context.Context, response any) (any, error) {
	return p.fn(ctx, response)
}

// ResultFunc adapts a function to core.ResultProcessor.
func ResultFunc(name string, fn func(ctx context.Context, j core.Judgment) (core.Judgment, error)) core.ResultProcessor {
	return resultFunc{name: name, fn: fn}
}

type resultFunc struct {
	name string
	fn   func(ctx context.Context, j core.Judgment) (core.Judgment, error)
}

func (p resultFunc) Name() string { return p.name }
func (p resultFunc) ProcessResult(ctx context.Context, j core.Judgment) (core.Judgment, error) {
	return p.fn(ctx, j)
}

package judge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
)

// WeightedOptions configure a Weighted judge.
type WeightedOptions struct {
	Name             string
	MemberTimeout    time.Duration
	IncludeReasoning bool
	Logger           logging.Logger
}

// Weighted is a composite judge that aggregates member verdicts by weight.
// Weights are normalized to sum to 1. The verdict kind carrying the most
// weight decides the aggregation:
//
//   - boolean: true iff the true-weight is at least 0.5
//   - numeric: weighted mean
//   - categorical: weighted plurality
//   - otherwise: the verdict of the single highest-weight member
type Weighted struct {
	members []Member
	weights []float64
	opts    WeightedOptions
}

var _ core.Judge = (*Weighted)(nil)

// NewWeighted validates that there is at least one member and that every
// weight is positive.
func NewWeighted(members []Member, optFns ...func(o *WeightedOptions)) (*Weighted, error) {
	opts := WeightedOptions{
		Name:             "weighted",
		MemberTimeout:    DefaultMemberTimeout,
		IncludeReasoning: true,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.MemberTimeout <= 0 {
		opts.MemberTimeout = DefaultMemberTimeout
	}

	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	var sum float64
	for i, m := range members {
		if m.Judge == nil {
			return nil, fmt.Errorf("member %d has no judge", i)
		}
		if !(m.Weight > 0) || math.IsInf(m.Weight, 0) {
			return nil, fmt.Errorf("%w: member %s has weight %v", ErrInvalidWeight, m.Judge.Name(), m.Weight)
		}
		sum += m.Weight
	}
	weights := make([]float64, len(members))
	for i, m := range members {
		weights[i] = m.Weight / sum
	}

	return &Weighted{members: members, weights: weights, opts: opts}, nil
}

// Name implements core.Judge.
func (w *Weighted) Name() string { return w.opts.Name }

// Weights returns the normalized member weights.
func (w *Weighted) Weights() []float64 {
	out := make([]float64, len(w.weights))
	copy(out, w.weights)
	return out
}

// Judge invokes every member concurrently and aggregates. Any member failure
// fails the whole call.
func (w *Weighted) Judge(ctx context.Context, req core.JudgeRequest) (core.Judgment, error) {
	results := fanOut(ctx, w.members, req, w.opts.MemberTimeout, w.opts.Logger)
	if err := collectErrors(results); err != nil {
		return core.Judgment{}, fmt.Errorf("weighted: %w", err)
	}

	kind, ok := w.predominantKind(results)
	var (
		verdict core.Verdict
		totals  map[string]float64
	)
	switch {
	case ok && kind == core.KindBoolean:
		verdict, totals = w.aggregateBool(results)
	case ok && kind == core.KindNumeric:
		verdict, totals = w.aggregateNumeric(results)
	case ok && kind == core.KindCategorical:
		verdict, totals = w.aggregateCategorical(results)
	default:
		verdict = results[w.heaviest()].judgment.Verdict
	}

	var agreeing int
	var agreeWeight float64
	for i, r := range results {
		if r.judgment.Verdict.Equal(verdict) {
			agreeing++
			agreeWeight += w.weights[i]
		}
	}

	predominant := "mixed"
	if ok {
		predominant = kind.String()
	}
	vs := votes(w.members, results)
	for i := range vs {
		vs[i].Weight = util.Round(w.weights[i], 4)
	}
	comp := &core.CompositeResult{
		Strategy:         "weighted",
		ConsensusReached: true,
		AgreementRatio:   util.Round(agreeWeight, 4),
		TotalMembers:     len(results),
		AgreeingMembers:  agreeing,
		Votes:            vs,
		WeightTotals:     totals,
		PredominantKind:  predominant,
	}

	reasoning := ""
	if w.opts.IncludeReasoning {
		reasoning = joinReasoning(w.members, results)
	}
	return core.Judgment{
		Verdict:   verdict,
		Reasoning: reasoning,
		Composite: comp,
		Metadata: map[string]any{
			"agreement_ratio":  comp.AgreementRatio,
			"predominant_kind": predominant,
		},
	}, nil
}

// predominantKind returns the verdict kind with the greatest summed weight.
// ok is false when two kinds tie for the top.
func (w *Weighted) predominantKind(results []memberResult) (core.VerdictKind, bool) {
	sums := map[core.VerdictKind]float64{}
	for i, r := range results {
		sums[r.judgment.Verdict.Kind] += w.weights[i]
	}
	var (
		best    core.VerdictKind
		bestSum = -1.0
		tied    bool
	)
	for _, k := range []core.VerdictKind{core.KindBoolean, core.KindNumeric, core.KindCategorical, core.KindMultiDimensional} {
		s, present := sums[k]
		if !present {
			continue
		}
		switch {
		case s > bestSum+1e-12:
			best, bestSum, tied = k, s, false
		case math.Abs(s-bestSum) <= 1e-12:
			tied = true
		}
	}
	return best, !tied
}

// subset returns the indices of members that returned kind, with their
// weights renormalized within the subset.
func (w *Weighted) subset(results []memberResult, kind core.VerdictKind) ([]int, []float64) {
	var idx []int
	var sum float64
	for i, r := range results {
		if r.judgment.Verdict.Kind == kind {
			idx = append(idx, i)
			sum += w.weights[i]
		}
	}
	ws := make([]float64, len(idx))
	for j, i := range idx {
		ws[j] = w.weights[i] / sum
	}
	return idx, ws
}

func (w *Weighted) aggregateBool(results []memberResult) (core.Verdict, map[string]float64) {
	idx, ws := w.subset(results, core.KindBoolean)
	var trueW, falseW float64
	for j, i := range idx {
		if results[i].judgment.Verdict.Bool {
			trueW += ws[j]
		} else {
			falseW += ws[j]
		}
	}
	trueW, falseW = util.Round(trueW, 4), util.Round(falseW, 4)
	return core.Bool(trueW >= 0.5), map[string]float64{"true": trueW, "false": falseW}
}

func (w *Weighted) aggregateNumeric(results []memberResult) (core.Verdict, map[string]float64) {
	idx, ws := w.subset(results, core.KindNumeric)
	var mean float64
	for j, i := range idx {
		mean += ws[j] * results[i].judgment.Verdict.Score
	}
	mean = util.Round(mean, 4)
	return core.Score(mean), map[string]float64{"mean": mean}
}

func (w *Weighted) aggregateCategorical(results []memberResult) (core.Verdict, map[string]float64) {
	idx, ws := w.subset(results, core.KindCategorical)
	totals := map[string]float64{}
	var order []string
	for j, i := range idx {
		label := results[i].judgment.Verdict.Label
		if _, seen := totals[label]; !seen {
			order = append(order, label)
		}
		totals[label] += ws[j]
	}
	best := order[0]
	for _, label := range order[1:] {
		if totals[label] > totals[best] {
			best = label
		}
	}
	for label, v := range totals {
		totals[label] = util.Round(v, 4)
	}
	return core.Label(best), totals
}

// heaviest returns the index of the highest-weight member, first wins ties.
func (w *Weighted) heaviest() int {
	best := 0
	for i, wt := range w.weights {
		if wt > w.weights[best] {
			best = i
		}
	}
	return best
}

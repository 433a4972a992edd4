package judge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
)

// StrategyKind names a consensus voting rule.
type StrategyKind string

const (
	StrategyUnanimous StrategyKind = "unanimous"
	StrategyMajority  StrategyKind = "majority"
	StrategyThreshold StrategyKind = "threshold"
)

// Strategy is a consensus voting rule.
type Strategy struct {
	Kind      StrategyKind
	Threshold float64
}

// Unanimous requires every member to return the same verdict.
func Unanimous() Strategy { return Strategy{Kind: StrategyUnanimous} }

// Majority requires one verdict from strictly more than half of the members.
func Majority() Strategy { return Strategy{Kind: StrategyMajority} }

// Threshold requires one verdict from at least the fraction t of the members.
func Threshold(t float64) Strategy { return Strategy{Kind: StrategyThreshold, Threshold: t} }

// String renders the strategy, e.g. "threshold(0.75)".
func (s Strategy) String() string {
	if s.Kind == StrategyThreshold {
		return "threshold(" + strconv.FormatFloat(s.Threshold, 'g', -1, 64) + ")"
	}
	return string(s.Kind)
}

// ConsensusOptions configure a Consensus judge.
type ConsensusOptions struct {
	Name string
	// MemberTimeout bounds each member call; a timeout counts as a failure.
	MemberTimeout time.Duration
	// IncludeReasoning concatenates member reasoning into the judgment.
	IncludeReasoning bool
	Logger           logging.Logger
}

// Consensus is a composite judge that votes across its members.
type Consensus struct {
	members  []Member
	strategy Strategy
	opts     ConsensusOptions
}

var _ core.Judge = (*Consensus)(nil)

// NewConsensus validates the members and strategy.
func NewConsensus(members []Member, strategy Strategy, optFns ...func(o *ConsensusOptions)) (*Consensus, error) {
	opts := ConsensusOptions{
		Name:             "consensus",
		MemberTimeout:    DefaultMemberTimeout,
		IncludeReasoning: true,
		Logger:           logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	for i, m := range members {
		if m.Judge == nil {
			return nil, fmt.Errorf("member %d has no judge", i)
		}
	}
	switch strategy.Kind {
	case StrategyUnanimous, StrategyMajority:
	case StrategyThreshold:
		if strategy.Threshold <= 0 || strategy.Threshold > 1 {
			return nil, fmt.Errorf("%w, got %v", ErrInvalidThreshold, strategy.Threshold)
		}
	default:
		return nil, fmt.Errorf("unknown consensus strategy %q", strategy.Kind)
	}
	if opts.MemberTimeout <= 0 {
		opts.MemberTimeout = DefaultMemberTimeout
	}

	return &Consensus{members: members, strategy: strategy, opts: opts}, nil
}

// Name implements core.Judge.
func (c *Consensus) Name() string { return c.opts.Name }

// Judge invokes every member concurrently and applies the voting rule. Any
// member failure fails the whole call.
func (c *Consensus) Judge(ctx context.Context, req core.JudgeRequest) (core.Judgment, error) {
	results := fanOut(ctx, c.members, req, c.opts.MemberTimeout, c.opts.Logger)
	if err := collectErrors(results); err != nil {
		return core.Judgment{}, fmt.Errorf("consensus: %w", err)
	}

	verdicts := make([]core.Verdict, len(results))
	for i, r := range results {
		verdicts[i] = r.judgment.Verdict
	}
	t := tallyVerdicts(verdicts)
	verdict, reached := c.decide(t)

	comp := &core.CompositeResult{
		Strategy:         c.strategy.String(),
		ConsensusReached: reached,
		AgreementRatio:   util.Round(t.ratio(), 4),
		TotalMembers:     len(results),
		AgreeingMembers:  t.topCount(),
		Votes:            votes(c.members, results),
		Distribution:     t.distribution(),
	}

	return core.Judgment{
		Verdict:   verdict,
		Reasoning: c.reasoning(results),
		Composite: comp,
		Metadata: map[string]any{
			"agreement_ratio":   comp.AgreementRatio,
			"total_members":     comp.TotalMembers,
			"agreeing_members":  comp.AgreeingMembers,
			"consensus_reached": reached,
		},
	}, nil
}

func (c *Consensus) decide(t tally) (core.Verdict, bool) {
	top := t.top()
	switch c.strategy.Kind {
	case StrategyUnanimous:
		if t.topCount() == t.total {
			return top, true
		}
		return core.NoConsensus, false
	case StrategyMajority:
		// the plurality is returned either way, tagged by reached
		return top, t.topCount()*2 > t.total
	default:
		if t.ratio() >= c.strategy.Threshold {
			return top, true
		}
		return core.NoConsensus, false
	}
}

func (c *Consensus) reasoning(results []memberResult) string {
	if !c.opts.IncludeReasoning {
		return ""
	}
	return joinReasoning(c.members, results)
}

func joinReasoning(members []Member, results []memberResult) string {
	var b strings.Builder
	for i, r := range results {
		if r.judgment.Reasoning == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s", members[i].Judge.Name(), r.judgment.Reasoning)
	}
	return b.String()
}

func votes(members []Member, results []memberResult) []core.Vote {
	out := make([]core.Vote, len(results))
	for i, r := range results {
		out[i] = core.Vote{
			Judge:     members[i].Judge.Name(),
			Verdict:   r.judgment.Verdict,
			Weight:    members[i].Weight,
			Reasoning: r.judgment.Reasoning,
		}
	}
	return out
}

// tally counts verdicts by identity, remembering first-appearance order so
// ties resolve deterministically.
type tally struct {
	order  []string
	counts map[string]int
	values map[string]core.Verdict
	total  int
}

func tallyVerdicts(vs []core.Verdict) tally {
	t := tally{counts: map[string]int{}, values: map[string]core.Verdict{}, total: len(vs)}
	for _, v := range vs {
		k := v.Key()
		if _, seen := t.counts[k]; !seen {
			t.order = append(t.order, k)
			t.values[k] = v
		}
		t.counts[k]++
	}
	return t
}

func (t tally) topKey() string {
	best := ""
	for _, k := range t.order {
		if best == "" || t.counts[k] > t.counts[best] {
			best = k
		}
	}
	return best
}

func (t tally) top() core.Verdict { return t.values[t.topKey()] }

func (t tally) topCount() int { return t.counts[t.topKey()] }

func (t tally) ratio() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.topCount()) / float64(t.total)
}

// distribution keys counts by display value.
func (t tally) distribution() map[string]int {
	out := make(map[string]int, len(t.counts))
	for _, k := range t.order {
		out[t.values[k].String()] += t.counts[k]
	}
	return out
}

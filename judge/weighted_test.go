package judge

import (
	"context"
	"testing"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wv struct {
	v core.Verdict
	w float64
}

func weighted(t *testing.T, in ...wv) core.Judgment {
	t.Helper()
	ms := make([]Member, len(in))
	for i, x := range in {
		ms[i] = Member{Judge: testutil.ConstJudge("w"+string(rune('a'+i)), x.v), Weight: x.w}
	}
	w, err := NewWeighted(ms)
	require.NoError(t, err)
	j, err := w.Judge(context.Background(), core.JudgeRequest{})
	require.NoError(t, err)
	require.NotNil(t, j.Composite)
	return j
}

func TestWeighted_Boolean(t *testing.T) {
	j := weighted(t, wv{core.Bool(true), 0.6}, wv{core.Bool(false), 0.4})
	assert.Equal(t, core.Bool(true), j.Verdict)
	assert.Equal(t, map[string]float64{"true": 0.6, "false": 0.4}, j.Composite.WeightTotals)
	assert.Equal(t, "boolean", j.Composite.PredominantKind)
	assert.Equal(t, 0.6, j.Composite.AgreementRatio)

	// exactly half is enough
	j = weighted(t, wv{core.Bool(true), 1}, wv{core.Bool(false), 1})
	assert.Equal(t, core.Bool(true), j.Verdict)

	j = weighted(t, wv{core.Bool(true), 1}, wv{core.Bool(false), 3})
	assert.Equal(t, core.Bool(false), j.Verdict)
}

func TestWeighted_Numeric(t *testing.T) {
	j := weighted(t, wv{core.Score(0.9), 0.7}, wv{core.Score(0.6), 0.3})
	assert.Equal(t, core.Score(0.81), j.Verdict)
	assert.Equal(t, core.StatusEvaluated, core.StatusForVerdict(j.Verdict))

	// weights are normalized
	j = weighted(t, wv{core.Score(0.9), 7}, wv{core.Score(0.6), 3})
	assert.Equal(t, core.Score(0.81), j.Verdict)
}

func TestWeighted_Categorical(t *testing.T) {
	j := weighted(t, wv{core.Label("good"), 0.3}, wv{core.Label("bad"), 0.45}, wv{core.Label("good"), 0.25})
	assert.Equal(t, core.Label("good"), j.Verdict)
	assert.Equal(t, 0.55, j.Composite.WeightTotals["good"])
}

func TestWeighted_MixedKinds(t *testing.T) {
	// numeric members carry most weight, the boolean member is ignored
	j := weighted(t, wv{core.Score(0.2), 0.3}, wv{core.Score(0.4), 0.3}, wv{core.Bool(true), 0.4})
	assert.Equal(t, "numeric", j.Composite.PredominantKind)
	assert.Equal(t, core.Score(0.3), j.Verdict)

	// a tie between kinds falls back to the heaviest member
	j = weighted(t, wv{core.Score(0.2), 0.5}, wv{core.Label("x"), 0.5})
	assert.Equal(t, "mixed", j.Composite.PredominantKind)
	assert.Equal(t, core.Score(0.2), j.Verdict)

	dims := core.Dimensions(map[string]core.Verdict{"a": core.Bool(true)})
	j = weighted(t, wv{dims, 0.8}, wv{core.Bool(false), 0.2})
	assert.Equal(t, "multi_dimensional", j.Composite.PredominantKind)
	assert.True(t, dims.Equal(j.Verdict))
}

func TestNewWeighted_Validation(t *testing.T) {
	_, err := NewWeighted(nil)
	assert.ErrorIs(t, err, ErrNoMembers)

	_, err = NewWeighted([]Member{{Judge: testutil.ConstJudge("a", core.Bool(true)), Weight: 0}})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = NewWeighted([]Member{{Judge: testutil.ConstJudge("a", core.Bool(true)), Weight: -1}})
	assert.ErrorIs(t, err, ErrInvalidWeight)

	w, err := NewWeighted([]Member{
		{Judge: testutil.ConstJudge("a", core.Bool(true)), Weight: 1},
		{Judge: testutil.ConstJudge("b", core.Bool(true)), Weight: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0.75}, w.Weights())
}

func TestWeighted_MemberFailure(t *testing.T) {
	w, err := NewWeighted([]Member{
		{Judge: testutil.ConstJudge("a", core.Bool(true)), Weight: 1},
		{Judge: testutil.FailingJudge("b", testutil.ErrBoom), Weight: 1},
	})
	require.NoError(t, err)
	_, err = w.Judge(context.Background(), core.JudgeRequest{})
	assert.ErrorIs(t, err, testutil.ErrBoom)
	assert.ErrorContains(t, err, "1 of 2")
}

// Package metrics turns a finished result set into summary statistics. All
// functions are pure: the same input always yields the same output.
package metrics

import (
	"math"
	"slices"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
)

const (
	// Uncategorized is the category bucket for results without a category.
	Uncategorized = "uncategorized"

	ratePrecision    = 4
	latencyPrecision = 2
)

// Compute summarizes results, including a per-category breakdown.
func Compute(results []core.Result) *core.Metrics {
	m := summarize(results)
	if len(results) == 0 {
		return m
	}

	groups := map[string][]core.Result{}
	for _, r := range results {
		cat := r.Category
		if cat == "" {
			cat = Uncategorized
		}
		groups[cat] = append(groups[cat], r)
	}
	m.Categories = make(map[string]*core.Metrics, len(groups))
	for cat, rs := range groups {
		m.Categories[cat] = summarize(rs)
	}
	return m
}

func summarize(results []core.Result) *core.Metrics {
	m := &core.Metrics{Total: len(results)}
	durations := make([]float64, 0, len(results))

	for _, r := range results {
		durations = append(durations, toMillis(r.Duration))
		switch r.Status {
		case core.StatusError:
			m.Errors++
			continue
		case core.StatusPassed:
			m.Passed++
		case core.StatusFailed:
			m.Failed++
		}
		m.Evaluated++
		addVerdict(&m.Types, r.Judgment)
	}

	if m.Total > 0 {
		m.PassRate = util.Round(float64(m.Passed)/float64(m.Total), ratePrecision)
	}
	m.Latency = Latency(durations)
	finishNumeric(m.Types.Numeric)
	return m
}

// Latency computes the mean and nearest-rank percentiles of millisecond
// durations.
func Latency(ms []float64) core.LatencyStats {
	if len(ms) == 0 {
		return core.LatencyStats{}
	}
	sorted := slices.Clone(ms)
	slices.Sort(sorted)

	var sum float64
	for _, d := range sorted {
		sum += d
	}
	return core.LatencyStats{
		MeanMs: util.Round(sum/float64(len(sorted)), latencyPrecision),
		P50Ms:  util.Round(Percentile(sorted, 50), latencyPrecision),
		P95Ms:  util.Round(Percentile(sorted, 95), latencyPrecision),
		P99Ms:  util.Round(Percentile(sorted, 99), latencyPrecision),
	}
}

// Percentile returns the p-th percentile of an ascending slice using
// index = round(p/100 * (n-1)), clamped to the slice bounds.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Round(p / 100 * float64(n-1)))
	idx = max(0, min(idx, n-1))
	return sorted[idx]
}

func addVerdict(t *core.TypeBreakdown, v core.Verdict) {
	switch v.Kind {
	case core.KindBoolean:
		if t.Boolean == nil {
			t.Boolean = &core.BooleanStats{}
		}
		t.Boolean.Count++
		if v.Bool {
			t.Boolean.True++
		} else {
			t.Boolean.False++
		}
	case core.KindNumeric:
		if t.Numeric == nil {
			t.Numeric = &core.NumericStats{Min: v.Score, Max: v.Score}
		}
		n := t.Numeric
		n.Count++
		n.Mean += v.Score // sum until finishNumeric
		n.Min = math.Min(n.Min, v.Score)
		n.Max = math.Max(n.Max, v.Score)
	case core.KindCategorical:
		if t.Categorical == nil {
			t.Categorical = &core.CategoricalStats{Frequencies: map[string]int{}}
		}
		t.Categorical.Count++
		t.Categorical.Frequencies[v.Label]++
	case core.KindMultiDimensional:
		if t.MultiDimensional == nil {
			t.MultiDimensional = &core.MultiDimensionalStats{Dimensions: map[string]int{}}
		}
		t.MultiDimensional.Count++
		for name := range v.Dimensions {
			t.MultiDimensional.Dimensions[name]++
		}
	}
}

func finishNumeric(n *core.NumericStats) {
	if n == nil || n.Count == 0 {
		return
	}
	n.Mean = util.Round(n.Mean/float64(n.Count), ratePrecision)
	n.Min = util.Round(n.Min, ratePrecision)
	n.Max = util.Round(n.Max, ratePrecision)
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

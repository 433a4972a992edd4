package core

// Metrics is the summary computed over a finished result set.
type Metrics struct {
	Total      int                 `json:"total"`
	Evaluated  int                 `json:"evaluated"`
	Errors     int                 `json:"errors"`
	Passed     int                 `json:"passed"`
	Failed     int                 `json:"failed"`
	PassRate   float64             `json:"pass_rate"`
	Latency    LatencyStats        `json:"latency"`
	Types      TypeBreakdown       `json:"types"`
	Categories map[string]*Metrics `json:"categories,omitempty"`
}

// LatencyStats summarizes unit durations in milliseconds.
type LatencyStats struct {
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// TypeBreakdown is the verdict-type distribution. A nil entry means no
// verdict of that kind was observed.
type TypeBreakdown struct {
	Boolean          *BooleanStats          `json:"boolean,omitempty"`
	Numeric          *NumericStats          `json:"numeric,omitempty"`
	Categorical      *CategoricalStats      `json:"categorical,omitempty"`
	MultiDimensional *MultiDimensionalStats `json:"multi_dimensional,omitempty"`
}

type BooleanStats struct {
	Count int `json:"count"`
	True  int `json:"true"`
	False int `json:"false"`
}

type NumericStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type CategoricalStats struct {
	Count       int            `json:"count"`
	Frequencies map[string]int `json:"frequencies"`
}

// MultiDimensionalStats counts how often each dimension name occurred.
type MultiDimensionalStats struct {
	Count      int            `json:"count"`
	Dimensions map[string]int `json:"dimensions"`
}

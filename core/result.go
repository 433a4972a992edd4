package core

import "time"

// ResultStatus is the outcome class of a single unit.
type ResultStatus string

const (
	// StatusPassed means the judge returned boolean true.
	StatusPassed ResultStatus = "passed"
	// StatusFailed means the judge returned boolean false.
	StatusFailed ResultStatus = "failed"
	// StatusEvaluated means the judge returned a non-boolean verdict.
	StatusEvaluated ResultStatus = "evaluated"
	// StatusError means some stage of the unit failed, crashed or timed out.
	StatusError ResultStatus = "error"
)

// StatusForVerdict maps a final verdict to a result status.
func StatusForVerdict(v Verdict) ResultStatus {
	if v.Kind == KindBoolean {
		if v.Bool {
			return StatusPassed
		}
		return StatusFailed
	}
	return StatusEvaluated
}

// Result is the record of one unit. It is created exactly once per
// dispatched case and never mutated afterwards.
type Result struct {
	Index     int              `json:"index"`
	Source    string           `json:"source,omitempty"`
	Status    ResultStatus     `json:"status"`
	Input     any              `json:"input"`
	Criteria  string           `json:"criteria"`
	Category  string           `json:"category,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Response  any              `json:"response,omitempty"`
	Judgment  Verdict          `json:"judgment"`
	Reasoning string           `json:"reasoning,omitempty"`
	Composite *CompositeResult `json:"composite,omitempty"`
	Error     string           `json:"error,omitempty"`
	Stage     string           `json:"stage,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// ErrorResult builds a status=error result for a case that never produced a
// judgment.
func ErrorResult(c Case, index int, stage string, err error, d time.Duration) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		Index:    index,
		Status:   StatusError,
		Input:    c.Input,
		Criteria: c.Criteria,
		Category: c.Category,
		Metadata: c.Metadata,
		Error:    msg,
		Stage:    stage,
		Duration: d,
	}
}

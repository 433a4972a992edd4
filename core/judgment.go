package core

import "context"

// JudgeRequest is the input to a single judgment call.
type JudgeRequest struct {
	// Response is the (post-processed) work-function output under judgment.
	Response any
	// Criteria is the judgment instruction taken from the case.
	Criteria string
	// Params are judge-specific parameters from the run or member config.
	Params map[string]any
	// Input is the (pre-processed) case input, for judges that need it.
	Input any
	// Metadata is the case metadata bag.
	Metadata map[string]any
}

// Judge turns a (response, criteria) pair into a verdict.
//
// Implementations must be safe for concurrent use: the runner calls the same
// judge from many units at once and composite judges fan out to members in
// parallel.
type Judge interface {
	// Name identifies the judge in votes, logs and metrics.
	Name() string
	// Judge evaluates the request. A returned error fails the unit.
	Judge(ctx context.Context, req JudgeRequest) (Judgment, error)
}

// Judgment is a verdict plus its supporting metadata.
type Judgment struct {
	Verdict   Verdict          `json:"verdict"`
	Reasoning string           `json:"reasoning,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Composite *CompositeResult `json:"composite,omitempty"`
}

// Vote records one composite member's contribution.
type Vote struct {
	Judge     string  `json:"judge"`
	Verdict   Verdict `json:"verdict"`
	Weight    float64 `json:"weight,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
}

// CompositeResult wraps an aggregated verdict with the metadata of the
// composite strategy that produced it.
type CompositeResult struct {
	Strategy         string             `json:"strategy"`
	ConsensusReached bool               `json:"consensus_reached"`
	AgreementRatio   float64            `json:"agreement_ratio"`
	TotalMembers     int                `json:"total_members"`
	AgreeingMembers  int                `json:"agreeing_members"`
	Votes            []Vote             `json:"votes"`
	Distribution     map[string]int     `json:"distribution,omitempty"`
	WeightTotals     map[string]float64 `json:"weight_totals,omitempty"`
	PredominantKind  string             `json:"predominant_kind,omitempty"`
}

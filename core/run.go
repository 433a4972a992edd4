package core

import (
	"maps"
	"slices"
	"time"
)

// RunStatus is the lifecycle state of a run. Transitions are monotonic:
//
//	pending -> running -> completed | error | cancelled
//	pending -> error | cancelled
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunError     RunStatus = "error"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunError || s == RunCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunPending:
		return next == RunRunning || next == RunError || next == RunCancelled
	case RunRunning:
		return next == RunCompleted || next == RunError || next == RunCancelled
	default:
		return false
	}
}

// Experiment is free-form metadata identifying a run for persistence.
type Experiment struct {
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Tags   []string       `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// IsZero reports whether no experiment metadata was supplied.
func (e Experiment) IsZero() bool {
	return e.Name == "" && len(e.Params) == 0 && len(e.Tags) == 0
}

// RunState is the public snapshot of a run. Snapshots handed to callers are
// copies; the runner never mutates a snapshot after returning it.
type RunState struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Experiment Experiment `json:"experiment,omitzero"`
	Total      int        `json:"total"`
	Results    []Result   `json:"results"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
	Error      string     `json:"error,omitempty"`
	// Metrics is populated only when Status is completed.
	Metrics *Metrics `json:"metrics,omitempty"`
	// Config is the configuration snapshot the run executes with.
	Config RunConfig `json:"-"`
}

// Clone returns a copy that shares no mutable slices with s.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	c := *s
	c.Results = slices.Clone(s.Results)
	c.Experiment.Params = maps.Clone(s.Experiment.Params)
	c.Experiment.Tags = slices.Clone(s.Experiment.Tags)
	return &c
}

// Duration is the wall-clock time between start and finish, or zero while
// the run is still active.
func (s *RunState) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// RunInfo is handed to sinks and reporters when a run starts.
type RunInfo struct {
	RunID      string
	Total      int
	Experiment Experiment
	StartedAt  time.Time
}

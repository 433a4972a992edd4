package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a run lifecycle notification.
type EventType string

const (
	// EventStarted is emitted once, after the run's cases have been expanded.
	EventStarted EventType = "started"
	// EventProgress is emitted once per completed unit, in completion order.
	EventProgress EventType = "progress"
	// EventCompleted is the terminal event of a run that executed all units.
	EventCompleted EventType = "completed"
	// EventFailed is the terminal event of a run that hit a run-level error.
	EventFailed EventType = "failed"
	// EventCancelled is the terminal event of a cancelled run.
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether the event type ends a run's event stream.
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed || t == EventCancelled
}

// Progress carries running counts at the time a unit completes.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Passed    int     `json:"passed"`
	Failed    int     `json:"failed"`
	Errored   int     `json:"errored"`
	Evaluated int     `json:"evaluated"`
	Percent   float64 `json:"percent"`
}

// Event is a single lifecycle notification dispatched to sinks. After
// emission it should be treated as immutable. Which optional fields are set
// depends on Type:
//   - started:   Total, StartedAt
//   - progress:  Progress, Result
//   - completed: Metrics
//   - failed:    Error
//   - cancelled: Progress
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	RunID      string      `json:"run_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Status     RunStatus   `json:"status,omitempty"`
	Total      int         `json:"total,omitempty"`
	StartedAt  time.Time   `json:"started_at,omitzero"`
	Progress   *Progress   `json:"progress,omitempty"`
	Result     *Result     `json:"result,omitempty"`
	Metrics    *Metrics    `json:"metrics,omitempty"`
	Error      string      `json:"error,omitempty"`
	Experiment *Experiment `json:"experiment,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a run.
func NewEvent(runID string, t EventType) Event {
	return Event{
		ID:        NewID(),
		Type:      t,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for runs and events.
//
// This function creates a UUID-based unique identifier that can be used
// for run tracking and correlation throughout the framework.
func NewID() string { return uuid.NewString() }

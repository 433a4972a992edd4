package pipeline

import (
	"errors"
	"fmt"
)

// Stage names reported on error results.
const (
	StagePreProcess = "pre_process"
	StageWork       = "work"
	StageResponse   = "response_process"
	StageJudge      = "judge"
	StageResult     = "result_process"
	StageMiddleware = "middleware"
	StagePanic      = "panic"
	StageTimeout    = "timeout"
	StageSetup      = "setup"
	StageCancelled  = "cancelled"
)

// ErrEmptyVerdict is returned when a judge succeeds without a verdict.
var ErrEmptyVerdict = errors.New("judge returned an empty verdict")

// StageError records which pipeline stage, and optionally which processor,
// failed.
type StageError struct {
	Stage     string
	Processor string
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Processor != "" {
		return fmt.Sprintf("%s stage failed in %s: %v", e.Stage, e.Processor, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage, processor string, err error) error {
	return &StageError{Stage: stage, Processor: processor, Err: err}
}

// StageOf returns the stage recorded in err, or fallback when err carries
// none.
func StageOf(err error, fallback string) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return fallback
}

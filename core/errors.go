package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNoJudge is reported per unit when neither the run configuration nor
	// the case source provides a judge.
	ErrNoJudge = errors.New("no judge configured")

	// ErrNoWorkFunc is reported per unit when a case source has no work function.
	ErrNoWorkFunc = errors.New("no work function configured")
)

// ArityError describes a work function whose declared parameter count is
// outside the supported range (input, shared context, history).
type ArityError struct {
	Arity int
}

// Error implements the error interface.
func (e *ArityError) Error() string {
	return fmt.Sprintf("work function must accept 1 to 3 arguments (input, shared context, history), got %d", e.Arity)
}

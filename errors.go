package trisum

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned when a Config cannot drive a run.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrMemoryBudget is returned when the estimated size of a build structure
	// does not fit the resource controller's memory limit.
	ErrMemoryBudget = errors.New("memory budget exceeded")
)

// ErrDimensionMismatch indicates a row whose width differs from Config.Columns.
type ErrDimensionMismatch struct {
	Dataset  string
	Row      int
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dataset %s row %d: dimension mismatch: expected %d, got %d", e.Dataset, e.Row, e.Expected, e.Actual)
}

// Phase names a stage of a run.
type Phase string

const (
	PhaseBuild Phase = "build"
	PhaseMerge Phase = "merge"
	PhaseProbe Phase = "probe"
)

// WorkerError reports the failure of one chunk worker. Any worker failure
// aborts the run; no partial results are returned.
//
// The cause can be accessed via errors.Unwrap. Panics are recovered and
// reported with Panic set.
type WorkerError struct {
	Phase Phase
	Chunk int
	Panic bool
	Stack []byte
	cause error
}

func (e *WorkerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s worker %d panicked: %v", e.Phase, e.Chunk, e.cause)
	}
	return fmt.Sprintf("%s worker %d: %v", e.Phase, e.Chunk, e.cause)
}

func (e *WorkerError) Unwrap() error { return e.cause }

package simulation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRuns    = errors.New("number of runs must be strictly positive")
	ErrTooManyRuns    = errors.New("number of runs exceeds the configured maximum")
	ErrInvalidWorkers = errors.New("number of workers must be between 0 and the number of runs")
	ErrInvalidExec    = errors.New("invalid execution mode")
)

// RunError locates the rollout that failed.
type RunError struct {
	Run int
	Err error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %d: %v", e.Run, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

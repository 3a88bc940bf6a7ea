package simulation

import "fmt"

// Exec selects how the rollouts of a batch are scheduled.
type Exec int

const (
	ExecUnknown Exec = iota
	ExecSequential
	ExecParallel
)

func (e Exec) Valid() bool {
	return e == ExecSequential || e == ExecParallel
}

func (e Exec) String() string {
	switch e {
	case ExecSequential:
		return "sequential"
	case ExecParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

func ParseExec(s string) (Exec, error) {
	switch s {
	case "sequential":
		return ExecSequential, nil
	case "parallel":
		return ExecParallel, nil
	default:
		return ExecUnknown, fmt.Errorf("%w: %q", ErrInvalidExec, s)
	}
}

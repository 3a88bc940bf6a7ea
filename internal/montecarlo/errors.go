package montecarlo

import "errors"

var (
	ErrDimensionMismatch   = errors.New("schedule length does not match horizon")
	ErrInvalidConfig       = errors.New("invalid evaluator configuration")
	ErrUnsupportedDynamics = errors.New("strategy does not support these dynamics")
	ErrInvalidStrategy     = errors.New("invalid evaluation strategy")
)

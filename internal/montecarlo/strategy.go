package montecarlo

import "fmt"

// Strategy selects how a rollout is executed. Both strategies compute the
// same rollout; they differ only in how much work is hoisted out of the loop.
type Strategy int

const (
	StrategyUnknown Strategy = iota
	// StrategyDynamic calls NextTemperature/ComfortScore through the Dynamics
	// interface at every step.
	StrategyDynamic
	// StrategyFused precomputes the step constants of a *thermal.Model once
	// per rollout.
	StrategyFused
)

func (s Strategy) Valid() bool {
	return s == StrategyDynamic || s == StrategyFused
}

func (s Strategy) String() string {
	switch s {
	case StrategyDynamic:
		return "dynamic"
	case StrategyFused:
		return "fused"
	default:
		return "unknown"
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "dynamic":
		return StrategyDynamic, nil
	case "fused":
		return StrategyFused, nil
	default:
		return StrategyUnknown, fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

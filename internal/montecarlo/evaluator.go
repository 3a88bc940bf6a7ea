// Package montecarlo runs one rollout of a thermal load under a fixed control
// schedule and scores the occupant discomfort it produces.
package montecarlo

import (
	"fmt"

	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

// Dynamics is the capability set a rollout needs from a thermal model.
type Dynamics interface {
	NextTemperature(tempIn, tempOut float64, deltaSeconds int, power float64) float64
	ComfortScore(tempIn float64) float64
}

var _ Dynamics = (*thermal.Model)(nil)

// Evaluator is stateless apart from its configuration and safe for
// concurrent use.
type Evaluator struct {
	cfg      Config
	strategy Strategy
}

func New(cfg Config, strategy Strategy) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrategy, strategy)
	}
	return &Evaluator{cfg: cfg, strategy: strategy}, nil
}

func (e *Evaluator) Config() Config     { return e.cfg }
func (e *Evaluator) Strategy() Strategy { return e.strategy }

// Evaluate returns the cumulative comfort reward of one rollout: the score of
// the initial temperature plus the score after each of the Horizon steps.
func (e *Evaluator) Evaluate(m Dynamics, initialTemperature float64, actions []thermal.Action) (float64, error) {
	if len(actions) != e.cfg.Horizon {
		return 0, fmt.Errorf("%w: got %d actions, horizon is %d", ErrDimensionMismatch, len(actions), e.cfg.Horizon)
	}

	switch e.strategy {
	case StrategyFused:
		model, ok := m.(*thermal.Model)
		if !ok {
			return 0, fmt.Errorf("%w: %s needs *thermal.Model, got %T", ErrUnsupportedDynamics, e.strategy, m)
		}
		return e.evaluateFused(model, initialTemperature, actions), nil
	default:
		return e.evaluateDynamic(m, initialTemperature, actions), nil
	}
}

func (e *Evaluator) evaluateDynamic(m Dynamics, tempIn float64, actions []thermal.Action) float64 {
	reward := m.ComfortScore(tempIn)
	for t := 0; t < e.cfg.Horizon; t++ {
		tempIn = m.NextTemperature(tempIn, e.cfg.OutdoorTemperature, e.cfg.DeltaSeconds, actions[t].Power())
		reward += m.ComfortScore(tempIn)
	}
	return reward
}

func (e *Evaluator) evaluateFused(m *thermal.Model, tempIn float64, actions []thermal.Action) float64 {
	step := m.Stepper(e.cfg.OutdoorTemperature, e.cfg.DeltaSeconds)
	reward := step.Score(tempIn)
	for _, a := range actions {
		tempIn = step.Next(tempIn, a)
		reward += step.Score(tempIn)
	}
	return reward
}

// Step is one point of a rollout trajectory. Index 0 is the initial state and
// carries no action.
type Step struct {
	Index       int
	Action      thermal.Action
	Temperature float64
	Score       float64
	Reward      float64 // cumulative up to and including this step
}

// Trace replays a rollout through the Dynamics interface and records every
// intermediate state. The final Reward equals Evaluate's result.
func (e *Evaluator) Trace(m Dynamics, initialTemperature float64, actions []thermal.Action) ([]Step, error) {
	if len(actions) != e.cfg.Horizon {
		return nil, fmt.Errorf("%w: got %d actions, horizon is %d", ErrDimensionMismatch, len(actions), e.cfg.Horizon)
	}

	steps := make([]Step, 0, e.cfg.Horizon+1)
	tempIn := initialTemperature
	score := m.ComfortScore(tempIn)
	reward := score
	steps = append(steps, Step{Index: 0, Temperature: tempIn, Score: score, Reward: reward})

	for t, a := range actions {
		tempIn = m.NextTemperature(tempIn, e.cfg.OutdoorTemperature, e.cfg.DeltaSeconds, a.Power())
		score = m.ComfortScore(tempIn)
		reward += score
		steps = append(steps, Step{Index: t + 1, Action: a, Temperature: tempIn, Score: score, Reward: reward})
	}
	return steps, nil
}

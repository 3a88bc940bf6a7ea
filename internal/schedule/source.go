// Package schedule draws random control schedules and initial temperatures
// from an explicit seeded stream.
//
// Every sample consumes the stream in a fixed order: first one uniform draw
// per step of the horizon (action is on when the draw is >= 1-dutyCycle, i.e.
// off below 0.5 with the default 50/50 split), then one uniform draw for the
// initial temperature. Two sources built with the same seed and options yield
// identical sample sequences.
package schedule

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

const (
	DefaultInitialMin = 18.0
	DefaultInitialMax = 20.0
	DefaultDutyCycle  = 0.5
)

var (
	ErrInvalidRange   = errors.New("invalid initial temperature range")
	ErrInvalidDuty    = errors.New("duty cycle must be within [0, 1]")
	ErrInvalidHorizon = errors.New("horizon must be strictly positive")
)

// Sample is the input of one rollout.
type Sample struct {
	Actions            []thermal.Action
	InitialTemperature float64
}

type Options struct {
	InitialMin float64
	InitialMax float64
	DutyCycle  float64 // probability of ActionOn per step
}

func DefaultOptions() Options {
	return Options{
		InitialMin: DefaultInitialMin,
		InitialMax: DefaultInitialMax,
		DutyCycle:  DefaultDutyCycle,
	}
}

func (o *Options) Validate() error {
	if !(o.InitialMin < o.InitialMax) {
		return fmt.Errorf("%w: [%v, %v)", ErrInvalidRange, o.InitialMin, o.InitialMax)
	}
	if !(o.DutyCycle >= 0 && o.DutyCycle <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidDuty, o.DutyCycle)
	}
	return nil
}

// Source is not safe for concurrent use; draw from a single goroutine.
type Source struct {
	rng  *rand.Rand
	opts Options
}

func NewSource(seed int64, opts Options) (*Source, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		rng:  rand.New(rand.NewSource(seed)),
		opts: opts,
	}, nil
}

// Next draws the next sample of the stream.
func (s *Source) Next(horizon int) (Sample, error) {
	if horizon <= 0 {
		return Sample{}, fmt.Errorf("%w: got %d", ErrInvalidHorizon, horizon)
	}

	offBelow := 1 - s.opts.DutyCycle
	actions := make([]thermal.Action, horizon)
	for t := range actions {
		if s.rng.Float64() < offBelow {
			actions[t] = thermal.ActionOff
		} else {
			actions[t] = thermal.ActionOn
		}
	}

	span := s.opts.InitialMax - s.opts.InitialMin
	initial := s.opts.InitialMin + span*s.rng.Float64()

	return Sample{Actions: actions, InitialTemperature: initial}, nil
}

// Draw materialises n consecutive samples in stream order.
func (s *Source) Draw(n, horizon int) ([]Sample, error) {
	out := make([]Sample, n)
	for i := range out {
		sample, err := s.Next(horizon)
		if err != nil {
			return nil, err
		}
		out[i] = sample
	}
	return out, nil
}

// Generate returns the first sample of a fresh default stream for seed.
func Generate(seed int64, horizon int) (Sample, error) {
	src, err := NewSource(seed, DefaultOptions())
	if err != nil {
		return Sample{}, err
	}
	return src.Next(horizon)
}

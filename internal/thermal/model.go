// Package thermal holds the first-order thermal load model: a single indoor
// temperature relaxing exponentially towards outdoor temperature plus the
// equilibrium offset of the heater.
//
// The model is derived from two durations measured at an outdoor temperature of
// 0°C: the time to heat from goal-deadband to goal+deadband at full power, and
// the time to cool back down with the heater off (Mortensen & Haggerty, 1988).
package thermal

import (
	"fmt"
	"math"
)

const secondsPerHour = 3600

type Params struct {
	SecondsToHeat int
	SecondsToCool int
	Goal          float64 // target indoor temperature, °C
	Deadband      float64 // half-width of the zero-penalty band, °C
}

func DefaultParams() Params {
	return Params{
		SecondsToHeat: 20 * 60,
		SecondsToCool: 35 * 60,
		Goal:          20,
		Deadband:      0.5,
	}
}

func (p *Params) Validate() error {
	if p.SecondsToHeat <= 0 || p.SecondsToCool <= 0 {
		return fmt.Errorf("%w: durations must be strictly positive (heat=%ds, cool=%ds)",
			ErrInvalidParameter, p.SecondsToHeat, p.SecondsToCool)
	}
	if p.Deadband < 0 || math.IsNaN(p.Deadband) {
		return fmt.Errorf("%w: deadband must be >= 0, got %v", ErrInvalidParameter, p.Deadband)
	}
	lower, upper := p.Goal-p.Deadband, p.Goal+p.Deadband
	if !(lower > 0) {
		return fmt.Errorf("%w: goal-deadband must be > 0, got %v", ErrInvalidParameter, lower)
	}
	if !(upper > lower) || math.IsInf(upper, 0) {
		return fmt.Errorf("%w: empty comfort band [%v, %v]", ErrInvalidParameter, lower, upper)
	}
	return nil
}

// Model is immutable once built and safe for concurrent use.
type Model struct {
	goal     float64
	deadband float64
	c        float64
	p        float64
}

func New(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	lower := params.Goal - params.Deadband
	upper := params.Goal + params.Deadband

	alpha := math.Pow(lower/upper, 1/float64(params.SecondsToCool))
	c := (-1.0 / secondsPerHour) / math.Log(alpha)

	alphaHeat := math.Pow(alpha, float64(params.SecondsToHeat))
	p := (lower*alphaHeat - upper) / (alphaHeat - 1)

	if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
		return nil, fmt.Errorf("%w: degenerate capacitance %v", ErrInvalidParameter, c)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return nil, fmt.Errorf("%w: degenerate power %v", ErrInvalidParameter, p)
	}

	return &Model{
		goal:     params.Goal,
		deadband: params.Deadband,
		c:        c,
		p:        p,
	}, nil
}

func (m *Model) Goal() float64        { return m.goal }
func (m *Model) Deadband() float64    { return m.deadband }
func (m *Model) Capacitance() float64 { return m.c }
func (m *Model) Power() float64       { return m.p }

// Resistance is normalised to 1; C and P absorb the actual value.
func (m *Model) Resistance() float64 { return 1 }

// Decay returns the fraction of the temperature gap to equilibrium that
// remains after deltaSeconds.
func (m *Model) Decay(deltaSeconds int) float64 {
	return math.Exp((-float64(deltaSeconds) / secondsPerHour) / m.c)
}

// NextTemperature advances the indoor temperature by one step of deltaSeconds
// with the heater at the given power (0 = off, 1 = full).
func (m *Model) NextTemperature(tempIn, tempOut float64, deltaSeconds int, power float64) float64 {
	decay := m.Decay(deltaSeconds)
	return decay*tempIn + (1-decay)*(tempOut+power*m.p)
}

// ComfortScore is zero inside the deadband and minus the squared excess outside.
func (m *Model) ComfortScore(tempIn float64) float64 {
	distance := math.Abs(tempIn - m.goal)
	err := math.Max(distance-m.deadband, 0)
	return -(err * err)
}

// Equilibrium is the temperature reached when power is held forever.
func (m *Model) Equilibrium(tempOut, power float64) float64 {
	return tempOut + power*m.p
}

func (m *Model) Equal(other *Model) bool {
	if other == nil {
		return false
	}
	return m.c == other.c && m.p == other.p
}

func (m *Model) String() string {
	return fmt.Sprintf("<C=%.2f, P=%.2f>", m.c, m.p)
}

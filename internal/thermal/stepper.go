package thermal

// Stepper is NextTemperature specialised for a fixed outdoor temperature and
// step size. The per-step constants are computed once so a rollout loop does
// no transcendental work.
type Stepper struct {
	decay  float64
	gain   float64
	eqOff  float64
	eqOn   float64
	target *Model
}

func (m *Model) Stepper(tempOut float64, deltaSeconds int) Stepper {
	decay := m.Decay(deltaSeconds)
	return Stepper{
		decay:  decay,
		gain:   1 - decay,
		eqOff:  tempOut + 0*m.p,
		eqOn:   tempOut + 1*m.p,
		target: m,
	}
}

func (s Stepper) Next(tempIn float64, a Action) float64 {
	eq := s.eqOff
	if a == ActionOn {
		eq = s.eqOn
	}
	return s.decay*tempIn + s.gain*eq
}

func (s Stepper) Score(tempIn float64) float64 {
	return s.target.ComfortScore(tempIn)
}

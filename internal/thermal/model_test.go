package thermal

import (
	"errors"
	"math"
	"testing"
)

const (
	deltaSeconds = 300
	tempOut      = 0.0
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func newTestModel(t *testing.T, opts ...func(*Params)) *Model {
	t.Helper()

	p := DefaultParams()
	for _, opt := range opts {
		opt(&p)
	}

	m, err := New(p)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return m
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		ok     bool
	}{
		{"Default params", DefaultParams(), true},
		{"Reference durations", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 20, Deadband: 0.5}, true},
		{"Zero seconds to heat", Params{SecondsToHeat: 0, SecondsToCool: 600, Goal: 20, Deadband: 0.5}, false},
		{"Zero seconds to cool", Params{SecondsToHeat: 600, SecondsToCool: 0, Goal: 20, Deadband: 0.5}, false},
		{"Negative seconds to heat", Params{SecondsToHeat: -1, SecondsToCool: 600, Goal: 20, Deadband: 0.5}, false},
		{"Negative deadband", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 20, Deadband: -0.5}, false},
		{"Zero deadband", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 20, Deadband: 0}, false},
		{"Deadband equal to goal", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 20, Deadband: 20}, false},
		{"Deadband above goal", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 1, Deadband: 3}, false},
		{"Negative goal", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: -5, Deadband: 0.5}, false},
		{"NaN goal", Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: math.NaN(), Deadband: 0.5}, false},
		{"Refrigerator", Params{SecondsToHeat: 600, SecondsToCool: 1800, Goal: 4, Deadband: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.params)
			if tt.ok {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if !(m.Capacitance() > 0) {
					t.Fatalf("expected C > 0, got %v", m.Capacitance())
				}
				return
			}
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}
			if m != nil {
				t.Fatalf("expected nil model on error, got %v", m)
			}
		})
	}
}

func TestDerivedConstantsReproduceDurations(t *testing.T) {
	m := newTestModel(t)
	lower, upper := m.Goal()-m.Deadband(), m.Goal()+m.Deadband()

	// Free cool-down from upper reaches lower after SecondsToCool seconds.
	cooled := m.NextTemperature(upper, 0, 2100, 0)
	if !almostEqual(cooled, lower, 1e-9) {
		t.Fatalf("cool-down: got %v, want %v", cooled, lower)
	}

	// Full power from lower reaches upper after SecondsToHeat seconds.
	heated := m.NextTemperature(lower, 0, 1200, 1)
	if !almostEqual(heated, upper, 1e-9) {
		t.Fatalf("heat-up: got %v, want %v", heated, upper)
	}
}

func TestComfortScore(t *testing.T) {
	m := newTestModel(t)

	tests := []struct {
		name   string
		tempIn float64
		want   float64
	}{
		{"At goal", 20, 0},
		{"Lower deadband edge", 19.5, 0},
		{"Upper deadband edge", 20.5, 0},
		{"Inside deadband", 19.8, 0},
		{"One degree below band", 18.5, -1},
		{"Two degrees above band", 22.5, -4},
		{"Half degree above band", 21, -0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.ComfortScore(tt.tempIn)
			if !almostEqual(got, tt.want, 1e-12) {
				t.Errorf("ComfortScore(%v) = %v, want %v", tt.tempIn, got, tt.want)
			}
		})
	}
}

func TestComfortScoreNonPositiveAndSymmetric(t *testing.T) {
	m := newTestModel(t)

	for d := 0.0; d <= 30; d += 0.125 {
		below := m.ComfortScore(m.Goal() - d)
		above := m.ComfortScore(m.Goal() + d)
		if below > 0 || above > 0 {
			t.Fatalf("expected non-positive score at distance %v, got %v / %v", d, below, above)
		}
		if below != above {
			t.Fatalf("expected symmetric score at distance %v, got %v / %v", d, below, above)
		}
	}
}

func TestComfortScoreMonotonicOutsideBand(t *testing.T) {
	m := newTestModel(t)

	prev := m.ComfortScore(m.Goal() + m.Deadband())
	for tempIn := m.Goal() + m.Deadband() + 0.1; tempIn < 40; tempIn += 0.1 {
		cur := m.ComfortScore(tempIn)
		if !(cur < prev) {
			t.Fatalf("expected strictly decreasing score at %v: %v !< %v", tempIn, cur, prev)
		}
		prev = cur
	}
}

func TestNextTemperatureDirection(t *testing.T) {
	m, err := New(Params{SecondsToHeat: 1200, SecondsToCool: 2100, Goal: 20, Deadband: 0.5})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		power float64
		want  func(next float64) bool
	}{
		{"Heating moves temperature up", 1, func(next float64) bool { return next > 18.5 }},
		{"Off moves temperature towards outdoor", 0, func(next float64) bool { return next < 18.5 && next > tempOut }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := m.NextTemperature(18.5, tempOut, deltaSeconds, tt.power)
			if !tt.want(next) {
				t.Errorf("Test %q failed: got %v, initial %v", tt.name, next, 18.5)
			}
		})
	}
}

func TestNextTemperatureConvergesToEquilibrium(t *testing.T) {
	m := newTestModel(t)

	for _, power := range []float64{0, 1} {
		for _, start := range []float64{-40, 0, 18.5, 20, 75, 500} {
			eq := m.Equilibrium(tempOut, power)
			tempIn := start
			prevGap := math.Abs(tempIn - eq)
			for i := 0; i < 10000; i++ {
				tempIn = m.NextTemperature(tempIn, tempOut, deltaSeconds, power)
				gap := math.Abs(tempIn - eq)
				if gap > prevGap+1e-12 {
					t.Fatalf("power=%v start=%v: gap grew at step %d (%v > %v)", power, start, i, gap, prevGap)
				}
				prevGap = gap
			}
			if !almostEqual(tempIn, eq, 1e-9) {
				t.Fatalf("power=%v start=%v: got %v, want equilibrium %v", power, start, tempIn, eq)
			}
		}
	}
}

func TestNextTemperatureIsPure(t *testing.T) {
	m := newTestModel(t)
	a := m.NextTemperature(19.25, 2, 300, 1)
	b := m.NextTemperature(19.25, 2, 300, 1)
	if a != b {
		t.Fatalf("expected identical results, got %v and %v", a, b)
	}
}

func TestStepperMatchesNextTemperature(t *testing.T) {
	m := newTestModel(t)
	s := m.Stepper(tempOut, deltaSeconds)

	tempIn := 18.5
	for i := 0; i < 288; i++ {
		a := Action(i % 2)
		want := m.NextTemperature(tempIn, tempOut, deltaSeconds, a.Power())
		got := s.Next(tempIn, a)
		if !almostEqual(got, want, 1e-12) {
			t.Fatalf("step %d: Stepper.Next = %v, NextTemperature = %v", i, got, want)
		}
		if s.Score(got) != m.ComfortScore(got) {
			t.Fatalf("step %d: score mismatch", i)
		}
		tempIn = want
	}
}

func TestModelEqualAndString(t *testing.T) {
	a := newTestModel(t)
	b := newTestModel(t)
	c := newTestModel(t, func(p *Params) { p.SecondsToHeat = 900 })

	if !a.Equal(b) {
		t.Fatal("expected models built from the same params to be equal")
	}
	if a.Equal(c) {
		t.Fatal("expected models with different heating time to differ")
	}
	if a.Equal(nil) {
		t.Fatal("expected model not equal to nil")
	}
	if a.Resistance() != 1 {
		t.Fatalf("expected unit resistance, got %v", a.Resistance())
	}
	want := "<C=" + formatTwo(a.Capacitance()) + ", P=" + formatTwo(a.Power()) + ">"
	if a.String() != want {
		t.Fatalf("String() = %q, want %q", a.String(), want)
	}
}

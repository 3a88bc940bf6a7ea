package testutil

import (
	"context"
	"time"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/schedule"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

// FakeSimulationService is a reusable fake implementing ports.SimulationService.
// Put ONLY what multiple test packages need here.
type FakeSimulationService struct {
	I    ports.Info
	D    simulation.Request
	Last *simulation.Report
	Busy bool

	SetRunsCalled bool
	SetRunsArg    int
	SetRunsErr    error

	SetSeedCalled bool
	SetSeedArg    int64

	RunCalled bool
	RunArg    simulation.Request
	RunErr    error

	RunDefaultCalled bool

	HistoryLimit int
	HistoryOut   []simulation.Report
	HistoryErr   error

	EvaluateCalled  bool
	EvaluateInitial float64
	EvaluateActions []thermal.Action
	EvaluateOut     float64
	EvaluateErr     error
}

func NewFakeSimulationService() *FakeSimulationService {
	return &FakeSimulationService{
		I: ports.Info{
			InstanceID: "default",
			Model: simulation.ModelInfo{
				Goal:        20,
				Deadband:    0.5,
				Capacitance: 11.66,
				Power:       55.02,
			},
			Config: montecarlo.DefaultConfig(),
		},
		D: simulation.Request{
			Runs:      10000,
			Seed:      743298347,
			Exec:      simulation.ExecSequential,
			Strategy:  montecarlo.StrategyDynamic,
			Schedules: schedule.DefaultOptions(),
		},
	}
}

// NewReport builds a plausible report for req.
func NewReport(req simulation.Request) simulation.Report {
	return simulation.Report{
		ID:         "00000000-0000-4000-8000-000000000001",
		Seed:       req.Seed,
		Runs:       req.Runs,
		Exec:       req.Exec,
		Strategy:   req.Strategy,
		Workers:    1,
		Checksum:   -1.5 * float64(req.Runs),
		Mean:       -1.5,
		Min:        -9.25,
		Max:        0,
		Evaluation: time.Duration(req.Runs) * time.Microsecond,
		Elapsed:    time.Duration(req.Runs) * 2 * time.Microsecond,
		StartedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Model:      simulation.ModelInfo{Goal: 20, Deadband: 0.5, Capacitance: 11.66, Power: 55.02},
		Config:     montecarlo.DefaultConfig(),
	}
}

func (f *FakeSimulationService) Info() ports.Info             { return f.I }
func (f *FakeSimulationService) Defaults() simulation.Request { return f.D }
func (f *FakeSimulationService) Running() bool                { return f.Busy }

func (f *FakeSimulationService) SetRuns(n int) error {
	f.SetRunsCalled = true
	f.SetRunsArg = n
	if f.SetRunsErr != nil {
		return f.SetRunsErr
	}
	next := f.D
	next.Runs = n
	if err := next.Validate(); err != nil {
		return err
	}
	f.D = next
	return nil
}

func (f *FakeSimulationService) SetSeed(seed int64) {
	f.SetSeedCalled = true
	f.SetSeedArg = seed
	f.D.Seed = seed
}

func (f *FakeSimulationService) Run(_ context.Context, req simulation.Request) (simulation.Report, error) {
	f.RunCalled = true
	f.RunArg = req
	if f.RunErr != nil {
		return simulation.Report{}, f.RunErr
	}
	rep := NewReport(req)
	f.Last = &rep
	return rep, nil
}

func (f *FakeSimulationService) RunDefault(ctx context.Context) (simulation.Report, error) {
	f.RunDefaultCalled = true
	return f.Run(ctx, f.D)
}

func (f *FakeSimulationService) Latest() (simulation.Report, bool) {
	if f.Last == nil {
		return simulation.Report{}, false
	}
	return *f.Last, true
}

func (f *FakeSimulationService) History(_ context.Context, limit int) ([]simulation.Report, error) {
	f.HistoryLimit = limit
	return f.HistoryOut, f.HistoryErr
}

func (f *FakeSimulationService) Evaluate(initial float64, actions []thermal.Action) (float64, error) {
	f.EvaluateCalled = true
	f.EvaluateInitial = initial
	f.EvaluateActions = actions
	return f.EvaluateOut, f.EvaluateErr
}

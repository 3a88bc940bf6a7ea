package ports

import (
	"context"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

// Info describes the fixed part of a simulation service.
type Info struct {
	InstanceID string
	Model      simulation.ModelInfo
	Config     montecarlo.Config
}

// SimulationService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type SimulationService interface {
	Info() Info
	Defaults() simulation.Request
	SetRuns(int) error
	SetSeed(int64)
	Running() bool

	Run(ctx context.Context, req simulation.Request) (simulation.Report, error)
	RunDefault(ctx context.Context) (simulation.Report, error)
	Latest() (simulation.Report, bool)
	History(ctx context.Context, limit int) ([]simulation.Report, error)

	Evaluate(initialTemperature float64, actions []thermal.Action) (float64, error)
}

package ports

import (
	"time"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

// ReportDTO is the wire form of a report shared by HTTP, MQTT and Kafka.
type ReportDTO struct {
	ID                 string    `json:"id" yaml:"id"`
	InstanceID         string    `json:"instance_id,omitempty" yaml:"instance_id,omitempty"`
	Seed               int64     `json:"seed" yaml:"seed"`
	Runs               int       `json:"runs" yaml:"runs"`
	Exec               string    `json:"exec" yaml:"exec"`
	Strategy           string    `json:"strategy" yaml:"strategy"`
	Workers            int       `json:"workers" yaml:"workers"`
	Checksum           float64   `json:"checksum" yaml:"checksum"`
	Mean               float64   `json:"mean" yaml:"mean"`
	Min                float64   `json:"min" yaml:"min"`
	Max                float64   `json:"max" yaml:"max"`
	EvaluationSeconds  float64   `json:"evaluation_seconds" yaml:"evaluation_seconds"`
	ElapsedSeconds     float64   `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	PerRunSeconds      float64   `json:"per_run_seconds" yaml:"per_run_seconds"`
	StartedAt          time.Time `json:"started_at" yaml:"started_at"`
	Goal               float64   `json:"goal" yaml:"goal"`
	Deadband           float64   `json:"deadband" yaml:"deadband"`
	Capacitance        float64   `json:"capacitance" yaml:"capacitance"`
	Power              float64   `json:"power" yaml:"power"`
	DeltaSeconds       int       `json:"delta_seconds" yaml:"delta_seconds"`
	Horizon            int       `json:"horizon" yaml:"horizon"`
	OutdoorTemperature float64   `json:"outdoor_temperature" yaml:"outdoor_temperature"`
}

func ToReportDTO(r simulation.Report) ReportDTO {
	return ReportDTO{
		ID:                 r.ID,
		Seed:               r.Seed,
		Runs:               r.Runs,
		Exec:               r.Exec.String(),
		Strategy:           r.Strategy.String(),
		Workers:            r.Workers,
		Checksum:           r.Checksum,
		Mean:               r.Mean,
		Min:                r.Min,
		Max:                r.Max,
		EvaluationSeconds:  r.Evaluation.Seconds(),
		ElapsedSeconds:     r.Elapsed.Seconds(),
		PerRunSeconds:      r.PerRun().Seconds(),
		StartedAt:          r.StartedAt.UTC(),
		Goal:               r.Model.Goal,
		Deadband:           r.Model.Deadband,
		Capacitance:        r.Model.Capacitance,
		Power:              r.Model.Power,
		DeltaSeconds:       r.Config.DeltaSeconds,
		Horizon:            r.Config.Horizon,
		OutdoorTemperature: r.Config.OutdoorTemperature,
	}
}

// RunRequestDTO carries optional overrides of the service defaults.
type RunRequestDTO struct {
	Runs     *int    `json:"runs,omitempty"`
	Seed     *int64  `json:"seed,omitempty"`
	Exec     *string `json:"exec,omitempty"`
	Strategy *string `json:"strategy,omitempty"`
	Workers  *int    `json:"workers,omitempty"`
}

// Apply overlays the set fields onto base.
func (d RunRequestDTO) Apply(base simulation.Request) (simulation.Request, error) {
	req := base
	if d.Runs != nil {
		req.Runs = *d.Runs
	}
	if d.Seed != nil {
		req.Seed = *d.Seed
	}
	if d.Workers != nil {
		req.Workers = *d.Workers
	}
	if d.Exec != nil {
		e, err := simulation.ParseExec(*d.Exec)
		if err != nil {
			return req, err
		}
		req.Exec = e
	}
	if d.Strategy != nil {
		s, err := montecarlo.ParseStrategy(*d.Strategy)
		if err != nil {
			return req, err
		}
		req.Strategy = s
	}
	return req, nil
}

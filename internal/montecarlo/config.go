package montecarlo

import "fmt"

const (
	DefaultDeltaSeconds       = 5 * 60
	DefaultHorizon            = (24 * 60 * 60) / DefaultDeltaSeconds
	DefaultOutdoorTemperature = 0.0
)

// Config fixes the simulated time grid and environment of every rollout.
type Config struct {
	DeltaSeconds       int
	Horizon            int
	OutdoorTemperature float64
}

func DefaultConfig() Config {
	return Config{
		DeltaSeconds:       DefaultDeltaSeconds,
		Horizon:            DefaultHorizon,
		OutdoorTemperature: DefaultOutdoorTemperature,
	}
}

func (c *Config) Validate() error {
	if c.DeltaSeconds <= 0 {
		return fmt.Errorf("%w: delta seconds must be > 0, got %d", ErrInvalidConfig, c.DeltaSeconds)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be > 0, got %d", ErrInvalidConfig, c.Horizon)
	}
	return nil
}

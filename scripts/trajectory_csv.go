package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/schedule"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

// WriteTrajectory replays the first schedule drawn from seed and writes one
// CSV row per step.
func WriteTrajectory(filename string, seed int64, cfg montecarlo.Config) error {
	model, err := thermal.New(thermal.DefaultParams())
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}
	eval, err := montecarlo.New(cfg, montecarlo.StrategyDynamic)
	if err != nil {
		return fmt.Errorf("failed to create evaluator: %w", err)
	}
	sample, err := schedule.Generate(seed, cfg.Horizon)
	if err != nil {
		return fmt.Errorf("failed to draw schedule: %w", err)
	}
	steps, err := eval.Trace(model, sample.InitialTemperature, sample.Actions)
	if err != nil {
		return fmt.Errorf("failed to trace rollout: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	lower := model.Goal() - model.Deadband()
	upper := model.Goal() + model.Deadband()
	if err := writer.Write([]string{"Step", "Seconds", "Action", "Temperature", "Lower", "Upper", "Score", "Reward"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range steps {
		action := ""
		if s.Index > 0 {
			action = s.Action.String()
		}
		if err := writer.Write([]string{
			strconv.Itoa(s.Index),
			strconv.Itoa(s.Index * cfg.DeltaSeconds),
			action,
			fmt.Sprintf("%.4f", s.Temperature),
			fmt.Sprintf("%.2f", lower),
			fmt.Sprintf("%.2f", upper),
			fmt.Sprintf("%.6f", s.Score),
			fmt.Sprintf("%.6f", s.Reward),
		}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func main() {
	out := flag.String("out", "trajectory.csv", "output CSV file")
	seed := flag.Int64("seed", 743298347, "schedule seed")
	flag.Parse()

	if err := WriteTrajectory(*out, *seed, montecarlo.DefaultConfig()); err != nil {
		log.Fatal(err)
	}
}

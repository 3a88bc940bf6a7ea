package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

// BenchCase is one evaluator/execution pairing of the benchmark.
type BenchCase struct {
	Name     string
	Strategy montecarlo.Strategy
	Exec     simulation.Exec
}

func BenchCases() []BenchCase {
	return []BenchCase{
		{"dynamic", montecarlo.StrategyDynamic, simulation.ExecSequential},
		{"fused", montecarlo.StrategyFused, simulation.ExecSequential},
		{"dynamic-par", montecarlo.StrategyDynamic, simulation.ExecParallel},
		{"fused-par", montecarlo.StrategyFused, simulation.ExecParallel},
	}
}

type benchResult struct {
	Name   string          `json:"name" yaml:"name"`
	Report ports.ReportDTO `json:"report" yaml:"report"`
}

// RunBench runs base once per case on the same seed and writes the results
// to w. Text output keeps one line per case.
func RunBench(ctx context.Context, driver *simulation.Driver, base simulation.Request, instanceID string, w io.Writer, format string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "", "text", "yaml", "json":
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}

	var results []benchResult
	if format == "" || format == "text" {
		fmt.Fprintf(w, "model %v, %d runs, seed %d\n", driver.Model(), base.Runs, base.Seed)
	}
	for _, bc := range BenchCases() {
		req := base
		req.Strategy = bc.Strategy
		req.Exec = bc.Exec
		rep, err := driver.Run(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", bc.Name, err)
		}
		dto := ports.ToReportDTO(rep)
		dto.InstanceID = instanceID
		results = append(results, benchResult{Name: bc.Name, Report: dto})

		if format == "" || format == "text" {
			fmt.Fprintf(w, "%-12s: per-run %.10fs, total %8.5fs. (checksum %f)\n",
				bc.Name, rep.PerRun().Seconds(), rep.Evaluation.Seconds(), rep.Checksum)
		}
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

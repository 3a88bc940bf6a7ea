// Package simulation repeats seeded rollouts and reduces their rewards into a
// checksum.
//
// A batch runs in two phases. All samples are first drawn in run order from a
// single seeded stream, so the inputs of run i never depend on how runs are
// scheduled. Rollouts are then evaluated sequentially or by a pool of workers,
// each writing its reward into its own slot. The checksum is summed over the
// slots in run order, which makes it bit-identical across execution modes and
// worker counts; summing in completion order would only agree up to
// floating-point rounding.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/schedule"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

// DefaultMaxRuns bounds a batch when Request.MaxRuns is unset. Every sample
// is held in memory until the batch ends.
const DefaultMaxRuns = 1_000_000

type Request struct {
	Runs      int
	Seed      int64
	Exec      Exec
	Strategy  montecarlo.Strategy
	Workers   int // 0 means GOMAXPROCS; ignored for sequential runs
	MaxRuns   int // 0 means DefaultMaxRuns
	Schedules schedule.Options
}

func (r *Request) Validate() error {
	if r.Runs <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRuns, r.Runs)
	}
	if r.MaxRuns < 0 {
		return fmt.Errorf("%w: max runs %d", ErrInvalidRuns, r.MaxRuns)
	}
	if limit := r.RunLimit(); r.Runs > limit {
		return fmt.Errorf("%w: got %d, max %d", ErrTooManyRuns, r.Runs, limit)
	}
	if r.Workers < 0 || r.Workers > r.Runs {
		return fmt.Errorf("%w: got %d for %d runs", ErrInvalidWorkers, r.Workers, r.Runs)
	}
	if !r.Exec.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidExec, r.Exec)
	}
	if !r.Strategy.Valid() {
		return fmt.Errorf("%w: %v", montecarlo.ErrInvalidStrategy, r.Strategy)
	}
	return r.Schedules.Validate()
}

// RunLimit is the largest batch the request accepts.
func (r *Request) RunLimit() int {
	if r.MaxRuns == 0 {
		return DefaultMaxRuns
	}
	return r.MaxRuns
}

type ModelInfo struct {
	Goal        float64 `json:"goal"`
	Deadband    float64 `json:"deadband"`
	Capacitance float64 `json:"capacitance"`
	Power       float64 `json:"power"`
}

func DescribeModel(m *thermal.Model) ModelInfo {
	return ModelInfo{
		Goal:        m.Goal(),
		Deadband:    m.Deadband(),
		Capacitance: m.Capacitance(),
		Power:       m.Power(),
	}
}

// Report summarises one batch.
type Report struct {
	ID         string
	Seed       int64
	Runs       int
	Exec       Exec
	Strategy   montecarlo.Strategy
	Workers    int // goroutines that evaluated rollouts; 1 for sequential runs
	Checksum   float64
	Mean       float64
	Min        float64
	Max        float64
	Evaluation time.Duration // summed time spent inside rollouts
	Elapsed    time.Duration // wall time of the whole batch
	StartedAt  time.Time
	Model      ModelInfo
	Config     montecarlo.Config
}

// PerRun is the mean time spent in one rollout.
func (r Report) PerRun() time.Duration {
	if r.Runs == 0 {
		return 0
	}
	return r.Evaluation / time.Duration(r.Runs)
}

type Driver struct {
	model *thermal.Model
	cfg   montecarlo.Config
	log   *slog.Logger
	now   func() time.Time
}

type DriverOption func(*Driver)

func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) { d.log = l }
}

func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) { d.now = now }
}

func NewDriver(model *thermal.Model, cfg montecarlo.Config, opts ...DriverOption) (*Driver, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", thermal.ErrInvalidParameter)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		model: model,
		cfg:   cfg,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Model() *thermal.Model     { return d.model }
func (d *Driver) Config() montecarlo.Config { return d.cfg }

// Run executes a batch. Cancellation is observed between rollouts only; a
// cancelled batch returns ctx.Err() and no report.
func (d *Driver) Run(ctx context.Context, req Request) (Report, error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	eval, err := montecarlo.New(d.cfg, req.Strategy)
	if err != nil {
		return Report{}, err
	}

	started := d.now()
	d.log.Info("simulation started",
		"runs", req.Runs, "seed", req.Seed, "exec", req.Exec, "strategy", req.Strategy)

	samples, err := d.draw(ctx, req)
	if err != nil {
		return Report{}, err
	}

	rewards := make([]float64, req.Runs)
	workers := 1
	var evaluation time.Duration
	switch req.Exec {
	case ExecParallel:
		workers = req.Workers
		if workers == 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		workers = min(workers, req.Runs)
		evaluation, err = d.evaluateParallel(ctx, eval, samples, rewards, workers)
	default:
		evaluation, err = d.evaluateSequential(ctx, eval, samples, rewards)
	}
	if err != nil {
		d.log.Warn("simulation aborted", "err", err)
		return Report{}, err
	}

	rep := Report{
		ID:         uuid.NewString(),
		Seed:       req.Seed,
		Runs:       req.Runs,
		Exec:       req.Exec,
		Strategy:   req.Strategy,
		Workers:    workers,
		Evaluation: evaluation,
		StartedAt:  started,
		Model:      DescribeModel(d.model),
		Config:     d.cfg,
	}
	rep.Checksum, rep.Min, rep.Max = reduce(rewards)
	rep.Mean = rep.Checksum / float64(req.Runs)
	rep.Elapsed = d.now().Sub(started)

	d.log.Info("simulation finished",
		"id", rep.ID, "checksum", rep.Checksum, "mean", rep.Mean,
		"per_run", rep.PerRun(), "elapsed", rep.Elapsed)
	return rep, nil
}

func (d *Driver) draw(ctx context.Context, req Request) ([]schedule.Sample, error) {
	src, err := schedule.NewSource(req.Seed, req.Schedules)
	if err != nil {
		return nil, err
	}
	samples := make([]schedule.Sample, req.Runs)
	for i := range samples {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples[i], err = src.Next(d.cfg.Horizon)
		if err != nil {
			return nil, &RunError{Run: i, Err: err}
		}
	}
	return samples, nil
}

func (d *Driver) evaluateSequential(ctx context.Context, eval *montecarlo.Evaluator, samples []schedule.Sample, rewards []float64) (time.Duration, error) {
	var spent time.Duration
	for i, s := range samples {
		if err := ctx.Err(); err != nil {
			return spent, err
		}
		start := time.Now()
		r, err := eval.Evaluate(d.model, s.InitialTemperature, s.Actions)
		spent += time.Since(start)
		if err != nil {
			return spent, &RunError{Run: i, Err: err}
		}
		rewards[i] = r
	}
	return spent, nil
}

func (d *Driver) evaluateParallel(ctx context.Context, eval *montecarlo.Evaluator, samples []schedule.Sample, rewards []float64, workers int) (time.Duration, error) {
	g, gctx := errgroup.WithContext(ctx)
	next := make(chan int)
	spent := make([]time.Duration, workers)

	g.Go(func() error {
		defer close(next)
		for i := range samples {
			select {
			case next <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range next {
				if err := gctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				r, err := eval.Evaluate(d.model, samples[i].InitialTemperature, samples[i].Actions)
				spent[w] += time.Since(start)
				if err != nil {
					return &RunError{Run: i, Err: err}
				}
				rewards[i] = r
			}
			return nil
		})
	}

	err := g.Wait()
	var total time.Duration
	for _, s := range spent {
		total += s
	}
	if err != nil {
		// Prefer the caller's cancellation over the derived context error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return total, ctxErr
		}
		return total, err
	}
	return total, nil
}

func reduce(rewards []float64) (sum, lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, r := range rewards {
		sum += r
		lo = math.Min(lo, r)
		hi = math.Max(hi, r)
	}
	return sum, lo, hi
}

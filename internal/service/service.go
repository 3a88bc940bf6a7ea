// Package service keeps a simulation driver alive behind the controllers:
// it owns the default request, serialises batches and fans finished reports
// out to storage, publishers and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Agrid-Dev/thermocarlo/internal/montecarlo"
	"github.com/Agrid-Dev/thermocarlo/internal/ports"
	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
	"github.com/Agrid-Dev/thermocarlo/internal/thermal"
)

var (
	ErrBusy       = ports.ErrBusy
	ErrNoHistory  = ports.ErrNoHistory
	ErrInvalidRun = errors.New("invalid default runs")
)

// Store persists finished reports.
type Store interface {
	Save(ctx context.Context, r simulation.Report) error
	List(ctx context.Context, limit int) ([]simulation.Report, error)
}

// Publisher forwards finished reports to an external system.
type Publisher interface {
	Publish(ctx context.Context, instanceID string, r simulation.Report) error
}

// Recorder receives batch outcomes for metrics.
type Recorder interface {
	ObserveReport(r simulation.Report)
	ObserveFailure(err error)
}

type Service struct {
	instanceID string
	driver     *simulation.Driver
	eval       *montecarlo.Evaluator
	log        *slog.Logger

	store      Store
	publishers []Publisher
	recorder   Recorder

	runMu   sync.Mutex
	running atomic.Bool

	mu       sync.RWMutex
	defaults simulation.Request
	last     *simulation.Report
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }
func WithStore(st Store) Option        { return func(s *Service) { s.store = st } }
func WithRecorder(r Recorder) Option   { return func(s *Service) { s.recorder = r } }
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publishers = append(s.publishers, p) }
}

func New(instanceID string, driver *simulation.Driver, defaults simulation.Request, opts ...Option) (*Service, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("default request: %w", err)
	}
	eval, err := montecarlo.New(driver.Config(), defaults.Strategy)
	if err != nil {
		return nil, err
	}
	s := &Service{
		instanceID: instanceID,
		driver:     driver,
		eval:       eval,
		defaults:   defaults,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

var _ ports.SimulationService = (*Service)(nil)

func (s *Service) Info() ports.Info {
	return ports.Info{
		InstanceID: s.instanceID,
		Model:      simulation.DescribeModel(s.driver.Model()),
		Config:     s.driver.Config(),
	}
}

func (s *Service) Defaults() simulation.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

func (s *Service) SetRuns(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRun, n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.defaults
	next.Runs = n
	if err := next.Validate(); err != nil {
		return err
	}
	s.defaults = next
	return nil
}

func (s *Service) SetSeed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults.Seed = seed
}

func (s *Service) Running() bool {
	return s.running.Load()
}

func (s *Service) Latest() (simulation.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return simulation.Report{}, false
	}
	return *s.last, true
}

func (s *Service) RunDefault(ctx context.Context) (simulation.Report, error) {
	return s.Run(ctx, s.Defaults())
}

// Run executes one batch. Only one batch runs at a time; a concurrent call
// fails fast with ErrBusy.
func (s *Service) Run(ctx context.Context, req simulation.Request) (simulation.Report, error) {
	if !s.runMu.TryLock() {
		return simulation.Report{}, ErrBusy
	}
	defer s.runMu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	rep, err := s.driver.Run(ctx, req)
	if err != nil {
		if s.recorder != nil {
			s.recorder.ObserveFailure(err)
		}
		return simulation.Report{}, err
	}

	s.mu.Lock()
	s.last = &rep
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.ObserveReport(rep)
	}
	s.dispatch(ctx, rep)
	return rep, nil
}

// dispatch hands the report to the sinks. Sink failures are logged and do not
// fail the batch.
func (s *Service) dispatch(ctx context.Context, rep simulation.Report) {
	if s.store != nil {
		if err := s.store.Save(ctx, rep); err != nil {
			s.log.Warn("report not stored", "id", rep.ID, "err", err)
		}
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, s.instanceID, rep); err != nil {
			s.log.Warn("report not published", "id", rep.ID, "err", err)
		}
	}
}

func (s *Service) History(ctx context.Context, limit int) ([]simulation.Report, error) {
	if s.store == nil {
		return nil, ErrNoHistory
	}
	return s.store.List(ctx, limit)
}

// Evaluate scores a single caller-supplied schedule with the default strategy.
func (s *Service) Evaluate(initialTemperature float64, actions []thermal.Action) (float64, error) {
	return s.eval.Evaluate(s.driver.Model(), initialTemperature, actions)
}

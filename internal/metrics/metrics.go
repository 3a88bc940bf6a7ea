package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Agrid-Dev/thermocarlo/internal/simulation"
)

const namespace = "thermocarlo"

// Metrics implements service.Recorder on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	simulations  *prometheus.CounterVec
	runs         prometheus.Counter
	duration     *prometheus.HistogramVec
	perRun       prometheus.Gauge
	lastChecksum prometheus.Gauge
	failures     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Completed simulation batches by evaluator strategy and execution mode.",
		}, []string{"strategy", "exec"}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_runs_total",
			Help:      "Total Monte Carlo rollouts evaluated.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "simulation_duration_seconds",
			Help:      "Wall-clock duration of the evaluation phase of a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"strategy"}),
		perRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_per_run_seconds",
			Help:      "Per-rollout evaluation time of the last batch.",
		}),
		lastChecksum: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_last_checksum",
			Help:      "Sum of rewards of the last batch.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulation_failures_total",
			Help:      "Batches that ended with an error.",
		}),
	}

	m.registry.MustRegister(
		m.simulations,
		m.runs,
		m.duration,
		m.perRun,
		m.lastChecksum,
		m.failures,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveReport(r simulation.Report) {
	if m == nil {
		return
	}
	m.simulations.WithLabelValues(r.Strategy.String(), r.Exec.String()).Inc()
	m.runs.Add(float64(r.Runs))
	m.duration.WithLabelValues(r.Strategy.String()).Observe(r.Evaluation.Seconds())
	m.perRun.Set(r.PerRun().Seconds())
	m.lastChecksum.Set(r.Checksum)
}

func (m *Metrics) ObserveFailure(error) {
	if m == nil {
		return
	}
	m.failures.Inc()
}

// Handler serves the private registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

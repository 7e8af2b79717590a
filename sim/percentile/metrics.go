package percentile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pkmc/pkmc/sim"
)

// Metrics exposes counters about percentile runs. A nil *Metrics records
// nothing.
type Metrics struct {
	runs          *prometheus.CounterVec
	simulated     prometheus.Counter
	failed        prometheus.Counter
	stageDuration *prometheus.HistogramVec
}

// NewMetrics creates the run metrics and registers them on reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkmc_percentile_runs_total",
				Help: "Percentile computations by sampling strategy and final status",
			},
			[]string{"strategy", "status"},
		),
		simulated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pkmc_simulated_patients_total",
				Help: "Virtual patients whose concentrations were simulated",
			},
		),
		failed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pkmc_failed_patients_total",
				Help: "Virtual patients excluded because their simulation failed",
			},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkmc_stage_duration_seconds",
				Help:    "Wall-clock duration of the sample, simulate and extract stages",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"stage"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.simulated, m.failed, m.stageDuration)
	}
	return m
}

func (m *Metrics) observeRun(strategy string, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(strategy, sim.StatusOf(err).String()).Inc()
}

func (m *Metrics) observePatients(simulated, failed int) {
	if m == nil {
		return
	}
	m.simulated.Add(float64(simulated))
	m.failed.Add(float64(failed))
}

func (m *Metrics) observeStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

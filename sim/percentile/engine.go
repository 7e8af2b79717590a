// Package percentile predicts concentration percentiles of a population by
// Monte Carlo simulation of virtual patients.
//
// Every strategy shares the same pipeline:
//
//	sample etas and epsilons → simulate patients in parallel → sort and extract ranks
//
// Only the sampling stage differs: a priori draws from the population
// covariance, a posteriori resamples importance-weighted candidates around
// the patient's posterior mode, and the normal approximation draws from the
// Laplace covariance.
package percentile

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pkmc/pkmc/sim"
)

// Defaults of Engine.
const (
	DefaultPatients          = 10000
	DefaultImportanceSamples = 100000
	DefaultResamples         = 10000
)

// Request describes the treatment whose percentiles are computed.
type Request struct {
	RecordFrom time.Time
	RecordTo   time.Time
	Intakes    sim.IntakeSeries
	Parameters *sim.ParameterSetSeries
	ErrorModel sim.ResidualErrorModel
	Ranks      []float64
	// Aborter is polled once per patient; nil never aborts.
	Aborter sim.Aborter
	// Seed of the run's random streams; 0 derives one from the clock.
	Seed int64
}

// Engine runs percentile computations. Its caches are owned by the caller
// and may be shared by engines.
type Engine struct {
	Calculator        sim.ConcentrationCalculator
	Patients          int
	Workers           int
	ImportanceSamples int
	Resamples         int
	MatrixCache       *ImportanceSampleMatrixCache
	Metrics           *Metrics
}

// NewEngine returns an engine with the default sizes, one worker per CPU and
// a fresh importance matrix cache.
func NewEngine(calculator sim.ConcentrationCalculator) *Engine {
	return &Engine{
		Calculator:        calculator,
		Patients:          DefaultPatients,
		Workers:           runtime.NumCPU(),
		ImportanceSamples: DefaultImportanceSamples,
		Resamples:         DefaultResamples,
		MatrixCache:       NewImportanceSampleMatrixCache(0),
	}
}

func (e *Engine) workers(units int) int {
	w := e.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	return max(1, min(w, units))
}

// Calculate runs the full pipeline with etas and epsilons from sampler.
func (e *Engine) Calculate(ctx context.Context, req Request, sampler Sampler) (pred *sim.PercentilesPrediction, err error) {
	defer func() { e.Metrics.observeRun(sampler.Name(), err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(req.Seed))
	started := time.Now()
	etas, epsilons, err := sampler.Sample(ctx, e, &req, rng)
	if err != nil {
		return nil, err
	}
	e.Metrics.observeStage("sample", started)
	if len(etas) > 0 && len(etas[0]) > 0 && len(etas[0]) != req.Parameters.NbEtas() {
		logrus.Warnf("%s draws %d etas but the parameters take %d", sampler.Name(), len(etas[0]), req.Parameters.NbEtas())
	}

	buffer, times, err := e.Simulate(ctx, &req, etas, epsilons)
	if err != nil {
		return nil, err
	}
	return e.SortAndExtract(ctx, req.Aborter, buffer, times, req.Ranks)
}

// recordedTimes normalizes a clone of the intakes and returns it with the
// sample times of every recorded cycle, which fix the buffer shape.
func recordedTimes(req *Request) (sim.IntakeSeries, [][]float64) {
	intakes := req.Intakes.Clone()
	intakes.NormalizeDensities()
	var times [][]float64
	for _, intake := range intakes.Recorded(req.RecordFrom, req.RecordTo) {
		times = append(times, sim.PertinentTimes(intake))
	}
	return intakes, times
}

// Simulate computes the concentrations of every patient into a buffer
// indexed [cycle][point][patient]. A patient whose simulation fails is
// recorded as NaN in every cell.
func (e *Engine) Simulate(ctx context.Context, req *Request, etas, epsilons [][]float64) ([][][]float64, [][]float64, error) {
	started := time.Now()
	defer e.Metrics.observeStage("simulate", started)

	intakes, times := recordedTimes(req)
	nbPatients := len(etas)
	buffer := make([][][]float64, len(times))
	for c := range times {
		buffer[c] = make([][]float64, len(times[c]))
		for p := range times[c] {
			buffer[c][p] = make([]float64, nbPatients)
		}
	}
	if nbPatients == 0 {
		return buffer, times, nil
	}

	var (
		wg      sync.WaitGroup
		aborted atomic.Bool
		failed  atomic.Int64
	)
	workers := e.workers(nbPatients)
	for w := 0; w < workers; w++ {
		lo, hi := w*nbPatients/workers, (w+1)*nbPatients/workers
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := intakes.Clone()
			var pred sim.ConcentrationPrediction
			for patient := lo; patient < hi; patient++ {
				if aborted.Load() || sim.ShouldStop(ctx, req.Aborter) {
					aborted.Store(true)
					return
				}
				pred.Reset()
				var eps []float64
				if patient < len(epsilons) {
					eps = epsilons[patient]
				}
				err := e.Calculator.ComputeConcentrations(&pred, req.RecordFrom, req.RecordTo, local,
					req.Parameters, etas[patient], req.ErrorModel, eps, false)
				if err != nil || !fits(&pred, times) {
					failed.Add(1)
					fill(buffer, patient, math.NaN())
					continue
				}
				for c := range buffer {
					for p := range buffer[c] {
						buffer[c][p][patient] = pred.Values[c][p]
					}
				}
			}
		}()
	}
	wg.Wait()

	e.Metrics.observePatients(nbPatients, int(failed.Load()))
	if aborted.Load() {
		return nil, nil, sim.StatusAborted
	}
	if n := failed.Load(); n > 0 {
		logrus.Debugf("%d of %d patients failed to simulate", n, nbPatients)
	}
	return buffer, times, nil
}

func fits(pred *sim.ConcentrationPrediction, times [][]float64) bool {
	if pred.NbCycles() != len(times) {
		return false
	}
	for c := range times {
		if len(pred.Values[c]) != len(times[c]) {
			return false
		}
	}
	return true
}

func fill(buffer [][][]float64, patient int, v float64) {
	for c := range buffer {
		for p := range buffer[c] {
			buffer[c][p][patient] = v
		}
	}
}

// SortAndExtract reads the requested ranks at every (cycle, point) over the
// patients that simulated without failure.
func (e *Engine) SortAndExtract(ctx context.Context, aborter sim.Aborter, buffer [][][]float64, times [][]float64,
	ranks []float64) (*sim.PercentilesPrediction, error) {

	started := time.Now()
	defer e.Metrics.observeStage("extract", started)

	valid := validPatients(buffer)
	if len(valid) == 0 {
		return nil, sim.StatusPercentilesNoValidPrediction
	}

	type cell struct{ cycle, point int }
	var cells []cell
	for c := range buffer {
		for p := range buffer[c] {
			cells = append(cells, cell{c, p})
		}
	}

	pred := &sim.PercentilesPrediction{}
	pred.Init(ranks, times)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		next    int
		aborted atomic.Bool
	)
	workers := e.workers(len(cells))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values := make([]float64, len(valid))
			for {
				mu.Lock()
				i := next
				next++
				mu.Unlock()
				if i >= len(cells) {
					return
				}
				if sim.ShouldStop(ctx, aborter) {
					aborted.Store(true)
					return
				}
				row := buffer[cells[i].cycle][cells[i].point]
				for k, patient := range valid {
					values[k] = row[patient]
				}
				sort.Float64s(values)
				for r, rank := range ranks {
					pred.Set(r, cells[i].cycle, cells[i].point, sim.PercentileAt(values, rank))
				}
			}
		}()
	}
	wg.Wait()

	if aborted.Load() {
		return nil, sim.StatusAborted
	}
	return pred, nil
}

// validPatients lists the patients without any NaN.
func validPatients(buffer [][][]float64) []int {
	if len(buffer) == 0 || len(buffer[0]) == 0 {
		return nil
	}
	n := len(buffer[0][0])
	bad := make([]bool, n)
	for c := range buffer {
		for p := range buffer[c] {
			for patient, v := range buffer[c][p] {
				if math.IsNaN(v) {
					bad[patient] = true
				}
			}
		}
	}
	valid := make([]int, 0, n)
	for patient, b := range bad {
		if !b {
			valid = append(valid, patient)
		}
	}
	return valid
}

func (r *Request) validate() error {
	if len(r.Intakes) == 0 {
		return fmt.Errorf("no intake to simulate: %w", sim.StatusFailure)
	}
	if r.Parameters == nil {
		return sim.StatusNoParameters
	}
	return nil
}

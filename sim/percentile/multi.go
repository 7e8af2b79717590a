package percentile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkmc/pkmc/sim"
)

// AnalyteGroup is one analyte group of a multi-analyte drug: its own
// treatment model and sampling strategy.
type AnalyteGroup struct {
	Request Request
	Sampler Sampler
}

// CalculateMulti simulates every analyte group and combines the groups'
// concentrations through combination before extracting ranks. With a
// single group, or no combination, the first group's concentrations are
// used as they are. Groups must record the same cycles and points; the
// recording window, aborter and seed of the first group apply to the
// whole run.
func (e *Engine) CalculateMulti(ctx context.Context, groups []AnalyteGroup, combination sim.Operation,
	ranks []float64) (pred *sim.PercentilesPrediction, err error) {

	if len(groups) == 0 {
		return nil, fmt.Errorf("no analyte group: %w", sim.StatusFailure)
	}
	defer func() { e.Metrics.observeRun("multi_"+groups[0].Sampler.Name(), err) }()

	buffers := make([][][][]float64, len(groups))
	var times [][]float64
	for g := range groups {
		req := groups[g].Request
		if err := req.validate(); err != nil {
			return nil, err
		}
		if req.Seed != 0 {
			// Decorrelate the groups' streams while keeping the run reproducible.
			req.Seed += int64(g)
		}
		rng := sim.NewPartitionedRNG(sim.NewSimulationKey(req.Seed))
		started := time.Now()
		etas, epsilons, err := groups[g].Sampler.Sample(ctx, e, &req, rng)
		if err != nil {
			return nil, fmt.Errorf("analyte group %d: %w", g, err)
		}
		e.Metrics.observeStage("sample", started)

		buffer, t, err := e.Simulate(ctx, &req, etas, epsilons)
		if err != nil {
			return nil, fmt.Errorf("analyte group %d: %w", g, err)
		}
		buffers[g] = buffer
		if g == 0 {
			times = t
		}
	}

	combined := buffers[0]
	if len(groups) > 1 && combination != nil {
		combined, err = combine(buffers, combination)
		if err != nil {
			return nil, err
		}
	}
	return e.SortAndExtract(ctx, groups[0].Request.Aborter, combined, times, ranks)
}

// combine evaluates combination on every (cycle, point, patient) tuple.
// A patient failed in any group stays failed. The shapes of the buffers
// must agree up to the patient count, which is truncated to the smallest.
func combine(buffers [][][][]float64, combination sim.Operation) ([][][]float64, error) {
	first := buffers[0]
	nbPatients := math.MaxInt
	for g, b := range buffers {
		if len(b) != len(first) {
			return nil, fmt.Errorf("analyte group %d records %d cycles instead of %d: %w",
				g, len(b), len(first), sim.StatusActiveMoietyCalculationError)
		}
		for c := range b {
			if len(b[c]) != len(first[c]) {
				return nil, fmt.Errorf("analyte group %d cycle %d has %d points instead of %d: %w",
					g, c, len(b[c]), len(first[c]), sim.StatusActiveMoietyCalculationError)
			}
			if len(b[c]) > 0 {
				nbPatients = min(nbPatients, len(b[c][0]))
			}
		}
	}
	if nbPatients == math.MaxInt {
		nbPatients = 0
	}

	inputs := make(map[string]float64, len(buffers))
	out := make([][][]float64, len(first))
	for c := range first {
		out[c] = make([][]float64, len(first[c]))
		for p := range first[c] {
			out[c][p] = make([]float64, nbPatients)
			for patient := 0; patient < nbPatients; patient++ {
				failed := false
				for g := range buffers {
					v := buffers[g][c][p][patient]
					if math.IsNaN(v) {
						failed = true
					}
					inputs[sim.OperationInputName(g)] = v
				}
				if failed {
					out[c][p][patient] = math.NaN()
					continue
				}
				v, err := combination.Evaluate(inputs)
				if err != nil {
					return nil, fmt.Errorf("combining cycle %d point %d: %v: %w",
						c, p, err, sim.StatusActiveMoietyCalculationError)
				}
				out[c][p][patient] = v
			}
		}
	}
	return out, nil
}

package estimation

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/pkmc/pkmc/sim"
	"github.com/pkmc/pkmc/sim/optimize"
)

// MAPResult is the posterior mode of the etas of one patient.
type MAPResult struct {
	Etas                  sim.Etas
	NegativeLogLikelihood float64
	Iterations            int
	Converged             bool
}

// MAPEstimator computes maximum a posteriori etas by minimizing the
// negative log-likelihood from the population mode (all etas zero).
type MAPEstimator struct {
	Calculator sim.ConcentrationCalculator
	Optimizer  optimize.ConjugateGradient
}

// NewMAPEstimator returns an estimator with the default optimizer settings.
func NewMAPEstimator(calculator sim.ConcentrationCalculator) *MAPEstimator {
	return &MAPEstimator{Calculator: calculator, Optimizer: optimize.NewConjugateGradient()}
}

// Estimate returns the a posteriori etas. Without samples the posterior is
// the prior and the etas are all zero. Samples outside the treatment are
// ignored; StatusAposterioriOutOfScopeSamples is returned when none is left.
// Hitting the iteration cap is not an error: the best point found is
// returned with Converged unset. Converged is also unset when no eta vector
// could predict the samples.
func (m *MAPEstimator) Estimate(ctx context.Context, omega mat.Symmetric, errorModel sim.ResidualErrorModel,
	samples sim.SampleSeries, intakes sim.IntakeSeries, parameters *sim.ParameterSetSeries) (*MAPResult, error) {

	n := sim.OmegaSize(omega)
	if n == 0 {
		return nil, sim.StatusBadOmega
	}
	if len(samples) == 0 {
		return &MAPResult{Etas: make(sim.Etas, n), Converged: true}, nil
	}
	if ctx.Err() != nil {
		return nil, sim.StatusAborted
	}

	samples, err := samples.WithinTreatment(intakes)
	if err != nil {
		return nil, err
	}
	l, err := NewLikelihood(omega, errorModel, samples, intakes, parameters, m.Calculator)
	if err != nil {
		return nil, err
	}
	started := time.Now()
	res := m.Optimizer.Minimize(l, make([]float64, n))
	nll := l.NegativeLogLikelihood(res.X)
	converged := res.Converged
	switch {
	case nll == math.MaxFloat64:
		logrus.Warnf("no eta vector predicts the %d samples", len(samples))
		converged = false
	case !converged:
		logrus.Warnf("a posteriori etas did not converge after %d iterations", res.Iterations)
	}
	logrus.Debugf("a posteriori etas %v found in %s (%s)", res.X, time.Since(started), res.Reason)

	return &MAPResult{
		Etas:                  res.X,
		NegativeLogLikelihood: nll,
		Iterations:            res.Iterations,
		Converged:             converged,
	}, nil
}

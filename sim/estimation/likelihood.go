// Package estimation evaluates the a posteriori likelihood of eta vectors
// and locates its mode. The Likelihood defined here is the objective
// minimized by sim/optimize and the density reweighted by the a posteriori
// percentile sampler.
package estimation

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pkmc/pkmc/sim"
)

// DerivativeStep is the finite-difference step used for the gradient and
// the Hessian of the negative log-likelihood.
const DerivativeStep = 2e-5

// Probability levels of the per-eta truncation bounds.
const (
	BoundHigh = 0.999
	BoundLow  = 0.001
)

// Likelihood is the negative log-posterior of an eta vector given observed
// samples: the residual error of every sample plus a multivariate normal
// prior of covariance omega.
//
// A Likelihood is not safe for concurrent use because the interval
// calculators of its intakes are not; use Clone to give each goroutine its
// own copy.
type Likelihood struct {
	prior      *distmv.Normal
	errorModel sim.ResidualErrorModel
	samples    sim.SampleSeries
	intakes    sim.IntakeSeries
	parameters *sim.ParameterSetSeries
	calculator sim.ConcentrationCalculator
	omin, omax []float64
}

// NewLikelihood binds the inputs of a likelihood evaluation. omega must be
// non-empty and positive definite.
func NewLikelihood(omega mat.Symmetric, errorModel sim.ResidualErrorModel, samples sim.SampleSeries,
	intakes sim.IntakeSeries, parameters *sim.ParameterSetSeries, calculator sim.ConcentrationCalculator) (*Likelihood, error) {

	n := sim.OmegaSize(omega)
	if n == 0 {
		return nil, sim.StatusBadOmega
	}
	prior, ok := distmv.NewNormal(make([]float64, n), omega, nil)
	if !ok {
		return nil, sim.StatusBadOmega
	}
	if parameters != nil && parameters.NbEtas() != n {
		logrus.Warnf("omega has %d etas but the parameters take %d", n, parameters.NbEtas())
	}
	if errorModel == nil {
		errorModel = &sim.SigmaResidualErrorModel{}
	}
	omin, omax := InitBounds(omega, BoundHigh, BoundLow)
	return &Likelihood{
		prior:      prior,
		errorModel: errorModel,
		samples:    samples,
		intakes:    intakes,
		parameters: parameters,
		calculator: calculator,
		omin:       omin,
		omax:       omax,
	}, nil
}

// InitBounds returns, per eta, the quantiles at low and high of a centered
// normal with the variance found on the diagonal of omega.
func InitBounds(omega mat.Symmetric, high, low float64) (omin, omax []float64) {
	n := sim.OmegaSize(omega)
	omin = make([]float64, n)
	omax = make([]float64, n)
	for i := 0; i < n; i++ {
		sd := math.Sqrt(omega.At(i, i))
		omin[i] = sd * distuv.UnitNormal.Quantile(low)
		omax[i] = sd * distuv.UnitNormal.Quantile(high)
	}
	return omin, omax
}

// NbEtas is the dimension of the eta vectors accepted by the likelihood.
func (l *Likelihood) NbEtas() int { return len(l.omin) }

// NegativeLogLikelihood evaluates the objective at etas. A failed simulation
// or a non-finite result yields math.MaxFloat64 so that minimizers treat the
// point as unfavorable.
func (l *Likelihood) NegativeLogLikelihood(etas []float64) float64 {
	if len(etas) != l.NbEtas() {
		return math.MaxFloat64
	}
	predicted, err := l.calculator.ComputeConcentrationsAtTimes(l.intakes, l.parameters, l.samples, etas)
	if err != nil {
		return math.MaxFloat64
	}
	nll := -l.prior.LogProb(etas)
	for i, s := range l.samples {
		nll += -l.errorModel.SampleLogLikelihood(predicted[i], s.Value) * s.Weight
	}
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		logrus.Debugf("negative log-likelihood is not finite for etas %v", etas)
		return math.MaxFloat64
	}
	return nll
}

// Value implements optimize.Objective.
func (l *Likelihood) Value(x []float64) float64 {
	return l.NegativeLogLikelihood(x)
}

// Gradient implements optimize.Objective with central differences. Each
// component is clamped to the truncation bounds of its eta.
func (l *Likelihood) Gradient(x, dst []float64) {
	fd.Gradient(dst, l.NegativeLogLikelihood, x, &fd.Settings{
		Formula: fd.Central,
		Step:    DerivativeStep,
	})
	for i := range dst {
		dst[i] = math.Max(l.omin[i], math.Min(dst[i], l.omax[i]))
	}
}

// Hessian approximates the matrix of second derivatives at x.
func (l *Likelihood) Hessian(x []float64) *mat.SymDense {
	h := mat.NewSymDense(len(x), nil)
	fd.Hessian(h, l.NegativeLogLikelihood, x, &fd.Settings{
		Formula: fd.Central,
		Step:    DerivativeStep,
	})
	return h
}

// Clone returns a likelihood sharing every input except the intakes.
func (l *Likelihood) Clone(intakes sim.IntakeSeries) *Likelihood {
	c := *l
	c.intakes = intakes
	return &c
}

// Package optimize minimizes smooth multivariate objectives. It backs the
// maximum a posteriori eta estimation in sim/estimation.
package optimize

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Objective is a differentiable function to minimize.
type Objective interface {
	Value(x []float64) float64
	// Gradient writes the gradient at x into dst, which has len(x).
	Gradient(x, dst []float64)
}

// Reason tells why a minimization stopped.
type Reason int

const (
	IterationLimit Reason = iota
	FunctionTolerance
	GradientTolerance
	ZeroGradient
)

func (r Reason) String() string {
	switch r {
	case FunctionTolerance:
		return "function tolerance"
	case GradientTolerance:
		return "gradient tolerance"
	case ZeroGradient:
		return "zero gradient"
	default:
		return "iteration limit"
	}
}

// Result is the outcome of a minimization. X is the best point found even
// when Converged is false.
type Result struct {
	X          []float64
	F          float64
	Iterations int
	Converged  bool
	Reason     Reason
}

const (
	DefaultFTol    = 3.0e-8
	DefaultMaxIter = 200

	gradientTol = 1.0e-8
	epsilon     = 1.0e-18
)

// ConjugateGradient is a Polak–Ribière nonlinear conjugate gradient
// minimizer with a derivative-based Brent line search.
type ConjugateGradient struct {
	FTol    float64
	MaxIter int
}

// NewConjugateGradient returns a minimizer with the default tolerances.
func NewConjugateGradient() ConjugateGradient {
	return ConjugateGradient{FTol: DefaultFTol, MaxIter: DefaultMaxIter}
}

// Minimize searches for a local minimum of obj starting at x0, which is
// not modified.
func (c ConjugateGradient) Minimize(obj Objective, x0 []float64) Result {
	ftol, maxIter := c.FTol, c.MaxIter
	if ftol <= 0 {
		ftol = DefaultFTol
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIter
	}

	n := len(x0)
	p := make([]float64, n)
	copy(p, x0)
	fp := obj.Value(p)
	if n == 0 {
		return Result{X: p, F: fp, Converged: true, Reason: ZeroGradient}
	}

	xi := make([]float64, n)
	g := make([]float64, n)
	h := make([]float64, n)
	obj.Gradient(p, xi)
	if floats.Norm(xi, 2) == 0 {
		return Result{X: p, F: fp, Converged: true, Reason: ZeroGradient}
	}
	floats.ScaleTo(g, -1, xi)
	copy(xi, g)
	copy(h, g)

	// The function-tolerance test is only armed after a line search that
	// made no progress at all.
	equal := false
	for its := 0; its < maxIter; its++ {
		fret := lineMinimize(obj, p, xi)
		if equal && 2*math.Abs(fret-fp) <= ftol*(math.Abs(fret)+math.Abs(fp)+epsilon) {
			return Result{X: p, F: fret, Iterations: its + 1, Converged: true, Reason: FunctionTolerance}
		}
		equal = fret == fp
		fp = fret

		obj.Gradient(p, xi)
		den := math.Max(fp, 1)
		test := 0.0
		for j := range xi {
			test = math.Max(test, math.Abs(xi[j])*math.Max(math.Abs(p[j]), 1)/den)
		}
		if test < gradientTol {
			return Result{X: p, F: fp, Iterations: its + 1, Converged: true, Reason: GradientTolerance}
		}

		gg := floats.Dot(g, g)
		if gg == 0 {
			return Result{X: p, F: fp, Iterations: its + 1, Converged: true, Reason: ZeroGradient}
		}
		dgg := floats.Dot(xi, xi) + floats.Dot(g, xi)
		gam := dgg / gg
		for j := range g {
			g[j] = -xi[j]
			h[j] = g[j] + gam*h[j]
			xi[j] = h[j]
		}
	}
	return Result{X: p, F: fp, Iterations: maxIter, Reason: IterationLimit}
}

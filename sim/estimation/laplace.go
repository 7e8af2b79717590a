package estimation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/pkmc/pkmc/sim"
)

// Subomega is the Laplace approximation of the posterior covariance of the
// etas: the inverse of the Hessian of the negative log-likelihood at the
// posterior mode.
func Subomega(l *Likelihood, mapEtas []float64) (*mat.SymDense, error) {
	if len(mapEtas) != l.NbEtas() || len(mapEtas) == 0 {
		return nil, sim.StatusAposterioriDegenerateCovariance
	}
	hessian := l.Hessian(mapEtas)
	if !finite(hessian) {
		return nil, sim.StatusAposterioriDegenerateCovariance
	}
	sub, err := sim.InverseSym(hessian)
	if err != nil || sim.HasNaN(sub) {
		return nil, sim.StatusAposterioriDegenerateCovariance
	}
	return sub, nil
}

func finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// OmegaFromStdDevs builds a diagonal covariance from standard deviations.
func OmegaFromStdDevs(sd []float64) *mat.SymDense {
	n := len(sd)
	if n == 0 {
		return nil
	}
	omega := mat.NewSymDense(n, nil)
	for i, s := range sd {
		omega.SetSym(i, i, s*s)
	}
	return omega
}

// OmegaFromCorrelations builds a covariance from standard deviations and a
// row-major correlation matrix (nil means uncorrelated).
func OmegaFromCorrelations(sd []float64, corr []float64) (*mat.SymDense, error) {
	n := len(sd)
	if corr == nil {
		return OmegaFromStdDevs(sd), nil
	}
	if len(corr) != n*n {
		return nil, fmt.Errorf("correlation matrix has %d entries, want %d", len(corr), n*n)
	}
	omega := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if corr[i*n+j] != corr[j*n+i] {
				return nil, fmt.Errorf("correlation matrix is not symmetric at (%d,%d)", i, j)
			}
			omega.SetSym(i, j, corr[i*n+j]*sd[i]*sd[j])
		}
	}
	return omega, nil
}

// OmegaSize is the dimension of omega, 0 when nil.
func OmegaSize(omega mat.Symmetric) int {
	if omega == nil {
		return 0
	}
	return omega.SymmetricDim()
}

// SquareRoot returns a lower-triangular-like factor L with L·Lᵀ = omega.
// Positive definite matrices use the Cholesky factor; positive
// semi-definite ones (a zero variance for instance) fall back to the
// eigen-decomposition V·sqrt(Λ).
func SquareRoot(omega mat.Symmetric) (mat.Matrix, error) {
	var chol mat.Cholesky
	if chol.Factorize(omega) {
		var l mat.TriDense
		chol.LTo(&l)
		return &l, nil
	}
	var eig mat.EigenSym
	if !eig.Factorize(omega, true) {
		return nil, StatusBadOmega
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	n := len(values)
	for i, v := range values {
		if v < -1e-12 {
			return nil, StatusBadOmega
		}
		values[i] = math.Sqrt(math.Max(v, 0))
	}
	root := mat.NewDense(n, n, nil)
	root.Mul(&vectors, mat.NewDiagDense(n, values))
	return root, nil
}

// InverseSym inverts a symmetric positive definite matrix.
func InverseSym(m mat.Symmetric) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return nil, StatusBadOmega
	}
	inv := mat.NewSymDense(m.SymmetricDim(), nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("inverting matrix: %w", err)
	}
	return inv, nil
}

// HasNaN reports whether any entry of m is NaN.
func HasNaN(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}

// CorrelatedDraw returns root·z + mean, the usual way of turning independent
// standard normals into draws from N(mean, root·rootᵀ).
func CorrelatedDraw(root mat.Matrix, z, mean []float64) []float64 {
	n := len(z)
	out := make([]float64, n)
	v := mat.NewVecDense(n, out)
	v.MulVec(root, mat.NewVecDense(n, z))
	for i := range out {
		if i < len(mean) {
			out[i] += mean[i]
		}
	}
	return out
}

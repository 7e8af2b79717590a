package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSquareRoot_ReconstructsOmega(t *testing.T) {
	tests := []struct {
		name  string
		omega *mat.SymDense
	}{
		{"diagonal", OmegaFromStdDevs([]float64{0.3, 0.5})},
		{"correlated", mat.NewSymDense(2, []float64{0.09, 0.06, 0.06, 0.25})},
		{"semi-definite with a zero variance", mat.NewSymDense(2, []float64{0.09, 0, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := SquareRoot(tt.omega)
			require.NoError(t, err)

			var back mat.Dense
			back.Mul(root, root.T())
			assert.True(t, mat.EqualApprox(&back, tt.omega, 1e-12))
		})
	}
}

func TestSquareRoot_RejectsIndefinite(t *testing.T) {
	_, err := SquareRoot(mat.NewSymDense(2, []float64{1, 2, 2, 1}))
	assert.ErrorIs(t, err, StatusBadOmega)
}

func TestOmegaFromCorrelations(t *testing.T) {
	omega, err := OmegaFromCorrelations([]float64{0.3, 0.5}, []float64{1, 0.4, 0.4, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.06, omega.At(0, 1), 1e-12)
	assert.InDelta(t, 0.25, omega.At(1, 1), 1e-12)

	_, err = OmegaFromCorrelations([]float64{0.3, 0.5}, []float64{1, 0.4, 0.3, 1})
	assert.Error(t, err, "asymmetric")
	_, err = OmegaFromCorrelations([]float64{0.3, 0.5}, []float64{1})
	assert.Error(t, err, "wrong size")
}

func TestInverseSym(t *testing.T) {
	m := mat.NewSymDense(2, []float64{4, 1, 1, 3})
	inv, err := InverseSym(m)
	require.NoError(t, err)

	var id mat.Dense
	id.Mul(m, inv)
	assert.True(t, mat.EqualApprox(&id, mat.NewDiagDense(2, []float64{1, 1}), 1e-12))

	_, err = InverseSym(mat.NewSymDense(2, []float64{1, 1, 1, 1}))
	assert.ErrorIs(t, err, StatusBadOmega)
}

func TestCorrelatedDraw(t *testing.T) {
	root := mat.NewDense(2, 2, []float64{2, 0, 1, 3})
	got := CorrelatedDraw(root, []float64{1, 1}, []float64{10, 20})
	assert.Equal(t, []float64{12, 24}, got)
}

func TestHasNaN(t *testing.T) {
	assert.False(t, HasNaN(mat.NewDense(1, 2, []float64{1, 2})))
	assert.True(t, HasNaN(mat.NewDense(1, 2, []float64{1, math.NaN()})))
}

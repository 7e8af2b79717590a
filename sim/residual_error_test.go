package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSigmaResidualErrorModel_ApplyEps(t *testing.T) {
	tests := []struct {
		name  string
		model SigmaResidualErrorModel
		value float64
		eps   float64
		want  float64
	}{
		{"additive", SigmaResidualErrorModel{Type: ErrorAdditive, Sigma: []float64{2}}, 10, 0.5, 11},
		{"proportional", SigmaResidualErrorModel{Type: ErrorProportional, Sigma: []float64{0.1}}, 10, 2, 12},
		{"exponential", SigmaResidualErrorModel{Type: ErrorExponential, Sigma: []float64{0.5}}, 10, 2, 10 * math.E},
		{"mixed", SigmaResidualErrorModel{Type: ErrorMixed, Sigma: []float64{3, 0.4}}, 10, 1, 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := []float64{tt.value}
			tt.model.ApplyEpsToArray(values, []float64{tt.eps})
			assert.InDelta(t, tt.want, values[0], 1e-12)
		})
	}
}

func TestSigmaResidualErrorModel_EmptyLeavesValues(t *testing.T) {
	var nilModel *SigmaResidualErrorModel
	none := &SigmaResidualErrorModel{Type: ErrorNone, Sigma: []float64{1}}
	for _, m := range []*SigmaResidualErrorModel{nilModel, none} {
		values := []float64{1, 2}
		m.ApplyEpsToArray(values, []float64{3})
		assert.Equal(t, []float64{1, 2}, values)
		assert.True(t, m.IsEmpty())
		assert.Equal(t, 0, m.NbEpsilons())
	}
}

func TestSigmaResidualErrorModel_SampleLogLikelihood(t *testing.T) {
	norm := 0.5 * math.Log(2*math.Pi)
	tests := []struct {
		name          string
		model         SigmaResidualErrorModel
		expected, obs float64
		want          float64
	}{
		{"additive exact", SigmaResidualErrorModel{Type: ErrorAdditive, Sigma: []float64{1}}, 5, 5, -norm},
		{"additive one sigma", SigmaResidualErrorModel{Type: ErrorAdditive, Sigma: []float64{2}}, 5, 7, -(norm + math.Log(2) + 0.5)},
		{"proportional", SigmaResidualErrorModel{Type: ErrorProportional, Sigma: []float64{0.1}}, 10, 11, -(norm + 0.0 + 0.5)},
		{"exponential", SigmaResidualErrorModel{Type: ErrorExponential, Sigma: []float64{1}}, 1, math.E, -(norm + 0.5)},
		{"mixed", SigmaResidualErrorModel{Type: ErrorMixed, Sigma: []float64{3, 0.4}}, 10, 10, -(norm + math.Log(5))},
		{"zero sigma exact", SigmaResidualErrorModel{Type: ErrorAdditive, Sigma: []float64{0}}, 5, 5, 0},
		{"zero sigma mismatch", SigmaResidualErrorModel{Type: ErrorAdditive, Sigma: []float64{0}}, 5, 6, -math.MaxFloat64},
		{"exponential negative observation", SigmaResidualErrorModel{Type: ErrorExponential, Sigma: []float64{1}}, 1, -1, -math.MaxFloat64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.model.SampleLogLikelihood(tt.expected, tt.obs)
			if tt.want == -math.MaxFloat64 {
				assert.Equal(t, tt.want, got)
				return
			}
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestParseErrorType(t *testing.T) {
	et, ok := ParseErrorType("mixed")
	assert.True(t, ok)
	assert.Equal(t, ErrorMixed, et)
	_, ok = ParseErrorType("weird")
	assert.False(t, ok)
}

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStandardTimes(t *testing.T) {
	assert.Equal(t, []float64{12}, StandardTimes(12, 1))
	assert.Equal(t, []float64{12}, StandardTimes(12, 0))
	assert.Equal(t, []float64{0, 6, 12}, StandardTimes(12, 3))
}

func TestInfusionTimes(t *testing.T) {
	tests := []struct {
		name               string
		interval, infusion float64
		n                  int
		want               []float64
	}{
		{"single", 8, 1, 1, []float64{8}},
		{"two", 8, 1, 2, []float64{0, 8}},
		{"short infusion keeps two points", 8, 1, 5, []float64{0, 1, 3.3333333333333335, 5.666666666666667, 8}},
		{"half interval", 8, 4, 6, []float64{0, 2, 4, 16.0 / 3, 20.0 / 3, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InfusionTimes(tt.interval, tt.infusion, tt.n)
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
			assert.Len(t, got, max(tt.n, 1))
		})
	}
}

func TestPertinentTimes_DispatchesOnRoute(t *testing.T) {
	bolus := &IntakeEvent{Interval: 8 * time.Hour, NbPoints: 5}
	infusion := &IntakeEvent{Interval: 8 * time.Hour, InfusionTime: 4 * time.Hour, Route: Infusion, NbPoints: 6}

	assert.Equal(t, StandardTimes(8, 5), PertinentTimes(bolus))
	assert.Equal(t, InfusionTimes(8, 4, 6), PertinentTimes(infusion))
}

func TestNewIntervalCalculator_Unregistered(t *testing.T) {
	saved := NewIntervalCalculatorFunc
	NewIntervalCalculatorFunc = nil
	defer func() { NewIntervalCalculatorFunc = saved }()

	_, err := NewIntervalCalculator("one_compartment_bolus")
	assert.Error(t, err)
}

package sim

import (
	"fmt"
	"math"
)

// Operation combines named input values into one value. It is how the
// concentrations of several analyte groups are merged into an active moiety.
type Operation interface {
	Evaluate(inputs map[string]float64) (float64, error)
}

// OperationInputName is the conventional name of the i-th analyte group.
func OperationInputName(i int) string {
	return fmt.Sprintf("input%d", i)
}

// WeightedSum is sum(w_i * input_i) over the weighted inputs.
type WeightedSum struct {
	Weights map[string]float64
}

func (o WeightedSum) Evaluate(inputs map[string]float64) (float64, error) {
	total := 0.0
	for name, w := range o.Weights {
		v, ok := inputs[name]
		if !ok {
			return 0, fmt.Errorf("missing operation input %q", name)
		}
		total += w * v
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("operation result is not finite")
	}
	return total, nil
}

// OperationFunc adapts a plain function to Operation.
type OperationFunc func(inputs map[string]float64) (float64, error)

func (f OperationFunc) Evaluate(inputs map[string]float64) (float64, error) {
	return f(inputs)
}

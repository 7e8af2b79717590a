package testutil

import (
	"sort"

	"github.com/pkmc/pkmc/sim"
)

// FixedParameters returns a single parameter set at Start with no
// variability.
func FixedParameters(values map[string]float64) *sim.ParameterSetSeries {
	return Parameters(values, nil)
}

// Parameters returns a single parameter set at Start. Parameters listed in
// variability get one eta each with the given variability type.
func Parameters(values map[string]float64, variability map[string]sim.VariabilityType) *sim.ParameterSetSeries {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	event := sim.NewParameterSetEvent(Start)
	for _, id := range ids {
		def := sim.ParameterDefinition{ID: id, Value: values[id]}
		if vt, ok := variability[id]; ok && vt != sim.VariabilityNone {
			def.Variability = vt
			def.NbEtas = 1
		}
		event.Add(def, values[id])
	}
	series := &sim.ParameterSetSeries{}
	series.Add(event)
	return series
}

// ConstantEliminationParameters is the linear test model with a constant
// concentration of dose*m during the whole interval.
func ConstantEliminationParameters(m float64) map[string]float64 {
	return map[string]float64{"TestA": 0, "TestM": m, "TestR": 0, "TestS": 0}
}

// Sample returns a unit-weight sample at hours after Start.
func Sample(hours, value float64) sim.SampleEvent {
	return sim.NewSample(Start.Add(Hours(hours)), value)
}

package sim

import (
	"fmt"
	"math"
)

// IntervalOutput is the result of simulating one dosing interval.
type IntervalOutput struct {
	Times     []float64 // hours from the intake start
	Values    []float64
	Residuals Residuals
}

// IntervalCalculator computes the concentration profile over one dosing
// interval for a given absorption route. Implementations are not safe for
// concurrent use; IntakeSeries.Clone gives each worker its own instance.
//
// Errors are Status values: StatusBadParameters when the parameters are out
// of the model's domain, StatusDensityError when the calculator had to use a
// point count different from the intake's (the output is still valid),
// StatusFailure otherwise.
type IntervalCalculator interface {
	CalculateIntakePoints(intake *IntakeEvent, params *ParameterSetEvent, in Residuals, fixedDensity bool) (IntervalOutput, error)
	CalculateIntakeSinglePoint(intake *IntakeEvent, params *ParameterSetEvent, in Residuals, atHours float64) (float64, Residuals, error)
	ResidualSize() int
	Clone() IntervalCalculator
}

// NewIntervalCalculatorFunc builds a calculator from a model name.
// Set by sim/pkmodels via init() to break the import cycle.
var NewIntervalCalculatorFunc func(model string) (IntervalCalculator, error)

// NewIntervalCalculator builds the calculator registered under model.
func NewIntervalCalculator(model string) (IntervalCalculator, error) {
	if NewIntervalCalculatorFunc == nil {
		return nil, fmt.Errorf("no interval calculator registered; import sim/pkmodels")
	}
	return NewIntervalCalculatorFunc(model)
}

// PertinentTimes returns the time points (hours from intake start) at which
// an intake's profile is evaluated.
func PertinentTimes(intake *IntakeEvent) []float64 {
	if intake.Route == Infusion && intake.InfusionTime > 0 {
		return InfusionTimes(intake.IntervalHours(), intake.InfusionTime.Hours(), intake.NbPoints)
	}
	return StandardTimes(intake.IntervalHours(), intake.NbPoints)
}

// StandardTimes spreads n points evenly over [0, interval].
func StandardTimes(interval float64, n int) []float64 {
	if n <= 1 {
		return []float64{interval}
	}
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i) / float64(n-1) * interval
	}
	return times
}

// InfusionTimes places points proportionally to the infusion and the
// post-infusion phases so the end of infusion is always sampled.
func InfusionTimes(interval, infusion float64, n int) []float64 {
	switch {
	case n <= 1:
		return []float64{interval}
	case n == 2:
		return []float64{0, interval}
	}
	nbInfus := int(math.Min(float64(n), math.Max(2, float64(int(infusion/interval*float64(n))))))
	nbPost := n - nbInfus
	post := interval - infusion
	times := make([]float64, 0, n)
	for i := 0; i < nbInfus; i++ {
		times = append(times, float64(i)/float64(nbInfus-1)*infusion)
	}
	for i := 0; i < nbPost; i++ {
		times = append(times, infusion+float64(i+1)/float64(nbPost)*post)
	}
	return times
}

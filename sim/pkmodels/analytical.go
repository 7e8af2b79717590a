package pkmodels

import (
	"fmt"
	"math"

	"github.com/pkmc/pkmc/sim"
)

// closedForm is a model whose profile over an interval has an analytical
// expression in terms of precomputed exponentials.
type closedForm interface {
	parameterIDs() []string
	residualSize() int
	// check validates the parameter values (in parameterIDs order) for an intake.
	check(intake *sim.IntakeEvent, values []float64) error
	// exponentials evaluates the time-dependent terms at times (hours).
	exponentials(intake *sim.IntakeEvent, values []float64, times []float64) sim.PrecomputedLogarithms
	// profile returns one slice per compartment, the first being the
	// observed concentration.
	profile(intake *sim.IntakeEvent, values []float64, in sim.Residuals, exps sim.PrecomputedLogarithms, times []float64) [][]float64
}

// Analytical adapts a closedForm model to sim.IntervalCalculator, caching the
// exponentials of full-interval evaluations.
type Analytical struct {
	name  string
	model closedForm
	cache *sim.CachedLogarithms
}

var _ sim.IntervalCalculator = (*Analytical)(nil)

func newAnalytical(name string, model closedForm) *Analytical {
	return &Analytical{name: name, model: model, cache: sim.NewCachedLogarithms()}
}

// Name is the registry name of the model.
func (a *Analytical) Name() string { return a.name }

// ParameterIDs lists the parameters the model reads.
func (a *Analytical) ParameterIDs() []string { return a.model.parameterIDs() }

// CacheLen is the number of cached exponential sets.
func (a *Analytical) CacheLen() int { return a.cache.Len() }

func (a *Analytical) ResidualSize() int { return a.model.residualSize() }

func (a *Analytical) Clone() sim.IntervalCalculator {
	return newAnalytical(a.name, a.model)
}

func (a *Analytical) values(intake *sim.IntakeEvent, params *sim.ParameterSetEvent) ([]float64, error) {
	ids := a.model.parameterIDs()
	values := make([]float64, len(ids))
	for i, id := range ids {
		v, ok := params.Value(id)
		if !ok {
			return nil, fmt.Errorf("%s: missing parameter %s: %w", a.name, id, sim.StatusBadParameters)
		}
		values[i] = v
	}
	if err := checkFinite("dose", intake.Dose); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", a.name, err, sim.StatusBadParameters)
	}
	if intake.Dose < 0 {
		return nil, fmt.Errorf("%s: dose is negative: %w", a.name, sim.StatusBadParameters)
	}
	if intake.Interval <= 0 {
		return nil, fmt.Errorf("%s: interval must be positive: %w", a.name, sim.StatusBadParameters)
	}
	if err := a.model.check(intake, values); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", a.name, err, sim.StatusBadParameters)
	}
	return values, nil
}

func (a *Analytical) cachedExponentials(intake *sim.IntakeEvent, values, times []float64) sim.PrecomputedLogarithms {
	key := append(append([]float64(nil), values...), intake.InfusionTime.Hours())
	if exps, ok := a.cache.Get(intake.Interval, key, len(times)); ok {
		return exps
	}
	exps := a.model.exponentials(intake, values, times)
	a.cache.Set(intake.Interval, key, len(times), exps)
	return exps
}

func (a *Analytical) CalculateIntakePoints(intake *sim.IntakeEvent, params *sim.ParameterSetEvent,
	in sim.Residuals, fixedDensity bool) (sim.IntervalOutput, error) {

	values, err := a.values(intake, params)
	if err != nil {
		return sim.IntervalOutput{}, err
	}
	in = padResiduals(in, a.model.residualSize())
	times := sim.PertinentTimes(intake)
	comps := a.model.profile(intake, values, in, a.cachedExponentials(intake, values, times), times)

	out := sim.IntervalOutput{
		Times:     times,
		Values:    comps[0],
		Residuals: make(sim.Residuals, a.model.residualSize()),
	}
	last := len(times) - 1
	for k := range out.Residuals {
		out.Residuals[k] = comps[k][last]
	}
	if out.Residuals[0] < 0 {
		return sim.IntervalOutput{}, fmt.Errorf("%s: the concentration is negative: %w", a.name, sim.StatusFailure)
	}
	if len(times) != intake.NbPoints {
		return out, sim.StatusDensityError
	}
	return out, nil
}

func (a *Analytical) CalculateIntakeSinglePoint(intake *sim.IntakeEvent, params *sim.ParameterSetEvent,
	in sim.Residuals, atHours float64) (float64, sim.Residuals, error) {

	values, err := a.values(intake, params)
	if err != nil {
		return 0, nil, err
	}
	in = padResiduals(in, a.model.residualSize())
	times := []float64{atHours, intake.IntervalHours()}
	comps := a.model.profile(intake, values, in, a.model.exponentials(intake, values, times), times)

	out := make(sim.Residuals, a.model.residualSize())
	for k := range out {
		out[k] = comps[k][1]
	}
	if out[0] < 0 {
		return 0, nil, fmt.Errorf("%s: the concentration is negative: %w", a.name, sim.StatusFailure)
	}
	return comps[0][0], out, nil
}

func padResiduals(in sim.Residuals, n int) sim.Residuals {
	if len(in) >= n {
		return in
	}
	out := make(sim.Residuals, n)
	copy(out, in)
	return out
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%s is NaN", name)
	}
	if math.IsInf(v, 0) {
		return fmt.Errorf("%s is Inf", name)
	}
	return nil
}

func checkStrictlyPositive(name string, v float64) error {
	if err := checkFinite(name, v); err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("%s is not greater than zero", name)
	}
	return nil
}

// NewIntervalCalculator creates the calculator registered under model.
func NewIntervalCalculator(model string) (sim.IntervalCalculator, error) {
	switch model {
	case ModelConstantEliminationBolus:
		return NewConstantEliminationBolus(), nil
	case ModelOneCompartmentBolus:
		return NewOneCompartmentBolus(), nil
	case ModelOneCompartmentBolusMicro:
		return NewOneCompartmentBolusMicro(), nil
	case ModelOneCompartmentInfusion:
		return NewOneCompartmentInfusion(), nil
	case ModelOneCompartmentExtravascular:
		return NewOneCompartmentExtravascular(), nil
	default:
		return nil, fmt.Errorf("pkmodels: unknown model %q", model)
	}
}

// Model names accepted by NewIntervalCalculator.
const (
	ModelConstantEliminationBolus    = "constant_elimination_bolus"
	ModelOneCompartmentBolus         = "one_compartment_bolus"
	ModelOneCompartmentBolusMicro    = "one_compartment_bolus_micro"
	ModelOneCompartmentInfusion      = "one_compartment_infusion"
	ModelOneCompartmentExtravascular = "one_compartment_extravascular"
)

// Models lists every registered model name.
func Models() []string {
	return []string{
		ModelConstantEliminationBolus,
		ModelOneCompartmentBolus,
		ModelOneCompartmentBolusMicro,
		ModelOneCompartmentInfusion,
		ModelOneCompartmentExtravascular,
	}
}

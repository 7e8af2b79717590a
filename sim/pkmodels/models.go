package pkmodels

import (
	"fmt"
	"math"

	"github.com/pkmc/pkmc/sim"
)

// constantElimination is a linear test model:
// C(t) = max(0, (D + R*res)*(1 - S*t)*M + A).
// Parameters: TestA, TestM, TestR, TestS.
type constantElimination struct{}

// NewConstantEliminationBolus returns the linear-elimination test model. It
// has no pharmacological meaning but its closed form makes exact
// expectations easy to write.
func NewConstantEliminationBolus() *Analytical {
	return newAnalytical(ModelConstantEliminationBolus, constantElimination{})
}

func (constantElimination) parameterIDs() []string { return []string{"TestA", "TestM", "TestR", "TestS"} }

func (constantElimination) residualSize() int { return 1 }

func (constantElimination) check(_ *sim.IntakeEvent, v []float64) error {
	if err := checkFinite("A", v[0]); err != nil {
		return err
	}
	if v[3] < 0 || math.IsNaN(v[3]) {
		return fmt.Errorf("S is negative")
	}
	return nil
}

func (constantElimination) exponentials(_ *sim.IntakeEvent, v []float64, times []float64) sim.PrecomputedLogarithms {
	m, s := v[1], v[3]
	p := make([]float64, len(times))
	for i, t := range times {
		p[i] = (1 - t*s) * m
	}
	return sim.PrecomputedLogarithms{"P": p}
}

func (constantElimination) profile(intake *sim.IntakeEvent, v []float64, in sim.Residuals, exps sim.PrecomputedLogarithms, _ []float64) [][]float64 {
	a, r := v[0], v[2]
	p := exps["P"]
	c := make([]float64, len(p))
	for i := range p {
		c[i] = math.Max(0, (intake.Dose+r*in[0])*p[i]+a)
	}
	return [][]float64{c}
}

// oneCompartmentBolus: C(t) = (D/V + res)*exp(-Ke*t). The macro form reads
// CL and V (Ke = CL/V), the micro form reads Ke and V directly.
type oneCompartmentBolus struct {
	micro bool
}

// NewOneCompartmentBolus returns the intravascular bolus model (CL, V).
func NewOneCompartmentBolus() *Analytical {
	return newAnalytical(ModelOneCompartmentBolus, oneCompartmentBolus{})
}

// NewOneCompartmentBolusMicro returns the intravascular bolus model (Ke, V).
func NewOneCompartmentBolusMicro() *Analytical {
	return newAnalytical(ModelOneCompartmentBolusMicro, oneCompartmentBolus{micro: true})
}

func (m oneCompartmentBolus) parameterIDs() []string {
	if m.micro {
		return []string{"Ke", "V"}
	}
	return []string{"CL", "V"}
}

func (oneCompartmentBolus) residualSize() int { return 1 }

func (m oneCompartmentBolus) check(_ *sim.IntakeEvent, v []float64) error {
	if err := checkStrictlyPositive(m.parameterIDs()[0], v[0]); err != nil {
		return err
	}
	return checkStrictlyPositive("V", v[1])
}

func (m oneCompartmentBolus) ke(v []float64) float64 {
	if m.micro {
		return v[0]
	}
	return v[0] / v[1]
}

func (m oneCompartmentBolus) exponentials(_ *sim.IntakeEvent, v []float64, times []float64) sim.PrecomputedLogarithms {
	return sim.PrecomputedLogarithms{"Ke": decay(m.ke(v), times)}
}

func (oneCompartmentBolus) profile(intake *sim.IntakeEvent, v []float64, in sim.Residuals, exps sim.PrecomputedLogarithms, _ []float64) [][]float64 {
	ke := exps["Ke"]
	c0 := intake.Dose/v[1] + in[0]
	c := make([]float64, len(ke))
	for i := range ke {
		c[i] = c0 * ke[i]
	}
	return [][]float64{c}
}

// oneCompartmentInfusion: constant-rate input over the infusion time, then
// first-order elimination. Parameters CL, V.
type oneCompartmentInfusion struct{}

// NewOneCompartmentInfusion returns the constant-rate infusion model (CL, V).
func NewOneCompartmentInfusion() *Analytical {
	return newAnalytical(ModelOneCompartmentInfusion, oneCompartmentInfusion{})
}

func (oneCompartmentInfusion) parameterIDs() []string { return []string{"CL", "V"} }

func (oneCompartmentInfusion) residualSize() int { return 1 }

func (oneCompartmentInfusion) check(intake *sim.IntakeEvent, v []float64) error {
	if err := checkStrictlyPositive("CL", v[0]); err != nil {
		return err
	}
	if err := checkStrictlyPositive("V", v[1]); err != nil {
		return err
	}
	if intake.InfusionTime <= 0 {
		return fmt.Errorf("infusion time is not greater than zero")
	}
	if intake.InfusionTime > intake.Interval {
		return fmt.Errorf("infusion time exceeds the interval")
	}
	return nil
}

func (oneCompartmentInfusion) exponentials(_ *sim.IntakeEvent, v []float64, times []float64) sim.PrecomputedLogarithms {
	return sim.PrecomputedLogarithms{"Ke": decay(v[0]/v[1], times)}
}

func (oneCompartmentInfusion) profile(intake *sim.IntakeEvent, v []float64, in sim.Residuals, exps sim.PrecomputedLogarithms, times []float64) [][]float64 {
	ke := v[0] / v[1]
	tinf := intake.InfusionTime.Hours()
	rate := intake.Dose / (tinf * ke * v[1])
	e := exps["Ke"]
	c := make([]float64, len(e))
	for i, t := range times {
		c[i] = in[0] * e[i]
		if t <= tinf {
			c[i] += rate * (1 - e[i])
		} else {
			c[i] += rate * (math.Exp(ke*tinf) - 1) * e[i]
		}
	}
	return [][]float64{c}
}

// oneCompartmentExtravascular: first-order absorption from a depot with
// bioavailability F. Residuals are the central concentration and the depot
// content expressed as a concentration. Parameters CL, F, Ka, V.
type oneCompartmentExtravascular struct{}

// NewOneCompartmentExtravascular returns the first-order absorption model.
func NewOneCompartmentExtravascular() *Analytical {
	return newAnalytical(ModelOneCompartmentExtravascular, oneCompartmentExtravascular{})
}

func (oneCompartmentExtravascular) parameterIDs() []string { return []string{"CL", "F", "Ka", "V"} }

func (oneCompartmentExtravascular) residualSize() int { return 2 }

func (oneCompartmentExtravascular) check(_ *sim.IntakeEvent, v []float64) error {
	cl, f, ka, vol := v[0], v[1], v[2], v[3]
	for i, name := range []string{"CL", "F", "Ka", "V"} {
		if err := checkStrictlyPositive(name, v[i]); err != nil {
			return err
		}
	}
	if f > 1 {
		return fmt.Errorf("F is greater than one")
	}
	if ka == cl/vol {
		return fmt.Errorf("Ka equals Ke")
	}
	return nil
}

func (oneCompartmentExtravascular) exponentials(_ *sim.IntakeEvent, v []float64, times []float64) sim.PrecomputedLogarithms {
	return sim.PrecomputedLogarithms{
		"Ke": decay(v[0]/v[3], times),
		"Ka": decay(v[2], times),
	}
}

func (oneCompartmentExtravascular) profile(intake *sim.IntakeEvent, v []float64, in sim.Residuals, exps sim.PrecomputedLogarithms, _ []float64) [][]float64 {
	f, ka, vol := v[1], v[2], v[3]
	ke := v[0] / vol
	depot := in[1] + f*intake.Dose/vol
	part := ka * depot / (ke - ka)
	eKe, eKa := exps["Ke"], exps["Ka"]
	central := make([]float64, len(eKe))
	gut := make([]float64, len(eKe))
	for i := range eKe {
		central[i] = eKe[i]*in[0] + (eKa[i]-eKe[i])*part
		gut[i] = depot * eKa[i]
	}
	return [][]float64{central, gut}
}

func decay(rate float64, times []float64) []float64 {
	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = math.Exp(-rate * t)
	}
	return out
}

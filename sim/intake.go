package sim

import (
	"time"
)

// Etas are the per-individual deviations applied to variable parameters.
type Etas []float64

// Residuals carry the compartment state from one intake to the next.
type Residuals []float64

// AbsorptionModel is the route by which a dose enters the body.
type AbsorptionModel int

const (
	Intravascular AbsorptionModel = iota
	Infusion
	Extravascular
	ExtravascularLag
)

var absorptionNames = map[string]AbsorptionModel{
	"intravascular":    Intravascular,
	"bolus":            Intravascular,
	"infusion":         Infusion,
	"extravascular":    Extravascular,
	"extravascularlag": ExtravascularLag,
}

// ParseAbsorptionModel maps a configuration name to an AbsorptionModel.
func ParseAbsorptionModel(name string) (AbsorptionModel, bool) {
	m, ok := absorptionNames[name]
	return m, ok
}

// IntakeEvent is one dose and the dosing interval that follows it.
type IntakeEvent struct {
	Time         time.Time
	OffsetTime   time.Duration // from the first intake of the series
	Dose         float64
	Unit         string
	Interval     time.Duration
	InfusionTime time.Duration
	Route        AbsorptionModel
	NbPoints     int
	Calculator   IntervalCalculator
}

// End is the end of the dosing interval.
func (e *IntakeEvent) End() time.Time {
	return e.Time.Add(e.Interval)
}

// IntervalHours is the dosing interval in hours.
func (e *IntakeEvent) IntervalHours() float64 {
	return e.Interval.Hours()
}

// Overlaps reports whether the interval intersects [from, to).
func (e *IntakeEvent) Overlaps(from, to time.Time) bool {
	return e.End().After(from) && e.Time.Before(to)
}

// IntakeSeries is a chronologically ordered list of intakes.
type IntakeSeries []*IntakeEvent

// Clone deep-copies the series. Calculators are cloned so the copy can be
// simulated concurrently with the original; intakes that shared a calculator
// share its clone.
func (s IntakeSeries) Clone() IntakeSeries {
	out := make(IntakeSeries, len(s))
	clones := make(map[IntervalCalculator]IntervalCalculator)
	for i, e := range s {
		c := *e
		if e.Calculator != nil {
			cc, ok := clones[e.Calculator]
			if !ok {
				cc = e.Calculator.Clone()
				clones[e.Calculator] = cc
			}
			c.Calculator = cc
		}
		out[i] = &c
	}
	return out
}

// TimeSpan returns the start of the first intake and the end of the last.
func (s IntakeSeries) TimeSpan() (time.Time, time.Time) {
	if len(s) == 0 {
		return time.Time{}, time.Time{}
	}
	return s[0].Time, s[len(s)-1].End()
}

// ResidualSize is the largest residual size over the series' calculators.
func (s IntakeSeries) ResidualSize() int {
	n := 0
	for _, e := range s {
		if e.Calculator != nil && e.Calculator.ResidualSize() > n {
			n = e.Calculator.ResidualSize()
		}
	}
	return n
}

// Recorded returns the intakes whose interval intersects [from, to).
func (s IntakeSeries) Recorded(from, to time.Time) IntakeSeries {
	var out IntakeSeries
	for _, e := range s {
		if e.Overlaps(from, to) {
			out = append(out, e)
		}
	}
	return out
}

// NormalizeDensities makes every intake's point count odd (at least 1).
func (s IntakeSeries) NormalizeDensities() {
	for _, e := range s {
		e.NbPoints = OddDensity(e.NbPoints)
	}
}

// OddDensity rounds n up to the next odd number, minimum 1.
func OddDensity(n int) int {
	if n < 1 {
		return 1
	}
	if n%2 == 0 {
		return n + 1
	}
	return n
}

// NewRegularIntakes builds count intakes of dose every interval starting at
// start, the common shape of a steady dosing regimen.
func NewRegularIntakes(start time.Time, count int, dose float64, unit string, interval, infusion time.Duration,
	route AbsorptionModel, nbPoints int, calc IntervalCalculator) IntakeSeries {
	s := make(IntakeSeries, count)
	for i := 0; i < count; i++ {
		offset := time.Duration(i) * interval
		s[i] = &IntakeEvent{
			Time:         start.Add(offset),
			OffsetTime:   offset,
			Dose:         dose,
			Unit:         unit,
			Interval:     interval,
			InfusionTime: infusion,
			Route:        route,
			NbPoints:     nbPoints,
			Calculator:   calc,
		}
	}
	return s
}

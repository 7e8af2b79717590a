package sim

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// VariabilityType selects how an eta perturbs a parameter value.
type VariabilityType int

const (
	VariabilityNone VariabilityType = iota
	VariabilityAdditive
	VariabilityNormal
	VariabilityExponential
	VariabilityLogNormal
	VariabilityProportional
	VariabilityLogit
)

var variabilityNames = map[string]VariabilityType{
	"none":         VariabilityNone,
	"additive":     VariabilityAdditive,
	"normal":       VariabilityNormal,
	"exponential":  VariabilityExponential,
	"lognormal":    VariabilityLogNormal,
	"proportional": VariabilityProportional,
	"logit":        VariabilityLogit,
}

// ParseVariabilityType maps a configuration name to a VariabilityType.
func ParseVariabilityType(name string) (VariabilityType, bool) {
	if name == "" {
		return VariabilityNone, true
	}
	v, ok := variabilityNames[name]
	return v, ok
}

// ParameterDefinition describes a model parameter and the number of etas
// that drive its inter-individual variability.
type ParameterDefinition struct {
	ID          string
	Value       float64
	Variability VariabilityType
	NbEtas      int
}

// IsVariable reports whether at least one eta applies to the parameter.
func (d ParameterDefinition) IsVariable() bool {
	return d.Variability != VariabilityNone && d.NbEtas > 0
}

// Parameter is a parameter value in a ParameterSetEvent.
type Parameter struct {
	Definition ParameterDefinition
	Value      float64
}

// ApplyEta perturbs the value according to the variability type. It returns
// false when the result is not finite.
func (p *Parameter) ApplyEta(eta float64) bool {
	if !p.Definition.IsVariable() {
		return true
	}
	switch p.Definition.Variability {
	case VariabilityAdditive, VariabilityNormal:
		p.Value += eta
	case VariabilityExponential, VariabilityLogNormal:
		p.Value *= math.Exp(eta)
	case VariabilityProportional:
		p.Value *= 1 + eta
	case VariabilityLogit:
		logit := math.Log(p.Value / (1 - p.Value))
		p.Value = 1 / (1 + math.Exp(-(logit + eta)))
	}
	if math.IsInf(p.Value, 0) {
		p.Value = math.MaxFloat64
		logrus.Warnf("applying eta to parameter %s makes it infinite", p.Definition.ID)
		return false
	}
	if math.IsNaN(p.Value) {
		logrus.Warnf("applying eta to parameter %s makes it not a number", p.Definition.ID)
		return false
	}
	return true
}

// ParameterSetEvent holds the parameter values valid from Time on. Variable
// parameters come first, then fixed ones, each group in ID order, which is
// the order in which etas are consumed.
type ParameterSetEvent struct {
	Time       time.Time
	Parameters []Parameter
}

// NewParameterSetEvent creates an empty set valid from t.
func NewParameterSetEvent(t time.Time) *ParameterSetEvent {
	return &ParameterSetEvent{Time: t}
}

// Add inserts or updates a parameter, keeping the canonical ordering.
func (e *ParameterSetEvent) Add(def ParameterDefinition, value float64) {
	for i := range e.Parameters {
		if e.Parameters[i].Definition.ID == def.ID {
			e.Parameters[i] = Parameter{Definition: def, Value: value}
			e.sort()
			return
		}
	}
	e.Parameters = append(e.Parameters, Parameter{Definition: def, Value: value})
	e.sort()
}

func (e *ParameterSetEvent) sort() {
	sort.SliceStable(e.Parameters, func(i, j int) bool {
		vi, vj := e.Parameters[i].Definition.IsVariable(), e.Parameters[j].Definition.IsVariable()
		if vi != vj {
			return vi
		}
		return e.Parameters[i].Definition.ID < e.Parameters[j].Definition.ID
	})
}

// Value returns the value of parameter id.
func (e *ParameterSetEvent) Value(id string) (float64, bool) {
	for _, p := range e.Parameters {
		if p.Definition.ID == id {
			return p.Value, true
		}
	}
	return 0, false
}

// NbEtas is the number of etas consumed by ApplyEtas.
func (e *ParameterSetEvent) NbEtas() int {
	n := 0
	for _, p := range e.Parameters {
		if p.Definition.IsVariable() {
			n += p.Definition.NbEtas
		}
	}
	return n
}

// Clone returns a deep copy.
func (e *ParameterSetEvent) Clone() *ParameterSetEvent {
	c := &ParameterSetEvent{Time: e.Time, Parameters: make([]Parameter, len(e.Parameters))}
	copy(c.Parameters, e.Parameters)
	return c
}

// ApplyEtas consumes etas in parameter order. A parameter with several etas
// receives their sum.
func (e *ParameterSetEvent) ApplyEtas(etas Etas) bool {
	k := 0
	ok := true
	for i := range e.Parameters {
		p := &e.Parameters[i]
		if !p.Definition.IsVariable() {
			continue
		}
		if k+p.Definition.NbEtas > len(etas) {
			k += p.Definition.NbEtas
			continue
		}
		sum := 0.0
		for j := 0; j < p.Definition.NbEtas; j++ {
			sum += etas[k]
			k++
		}
		ok = p.ApplyEta(sum) && ok
	}
	return ok
}

// ParameterSetSeries is a chronological list of parameter sets.
type ParameterSetSeries struct {
	Sets []*ParameterSetEvent
}

// Add appends a parameter set. Sets must be added in chronological order.
func (s *ParameterSetSeries) Add(e *ParameterSetEvent) {
	s.Sets = append(s.Sets, e)
}

// AtTime returns a copy of the latest set whose time is not after t (the
// first set when t precedes them all) with etas applied. An empty series
// yields StatusNoParameters; etas producing a non-finite value yield
// StatusBadParameters.
func (s *ParameterSetSeries) AtTime(t time.Time, etas Etas) (*ParameterSetEvent, error) {
	if len(s.Sets) == 0 {
		return nil, StatusNoParameters
	}
	idx := 0
	for idx+1 < len(s.Sets) && !t.Before(s.Sets[idx+1].Time) {
		idx++
	}
	p := s.Sets[idx].Clone()
	if len(etas) > 0 && !p.ApplyEtas(etas) {
		return nil, StatusBadParameters
	}
	return p, nil
}

// NbEtas is the number of etas expected by the first set, or 0.
func (s *ParameterSetSeries) NbEtas() int {
	if len(s.Sets) == 0 {
		return 0
	}
	return s.Sets[0].NbEtas()
}

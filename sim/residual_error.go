package sim

import (
	"math"
)

// ResidualErrorModel describes the intra-individual error between a
// predicted and an observed concentration.
type ResidualErrorModel interface {
	// IsEmpty reports whether the model applies no error at all.
	IsEmpty() bool
	// ApplyEpsToArray perturbs predicted values in place.
	ApplyEpsToArray(values []float64, eps []float64)
	// SampleLogLikelihood is the log-likelihood of observing observed when
	// expected was predicted.
	SampleLogLikelihood(expected, observed float64) float64
	// NbEpsilons is the number of epsilons consumed by ApplyEpsToArray.
	NbEpsilons() int
}

// ErrorType selects the SigmaResidualErrorModel formula.
type ErrorType int

const (
	ErrorNone ErrorType = iota
	ErrorAdditive
	ErrorProportional
	ErrorExponential
	ErrorMixed
)

var errorTypeNames = map[string]ErrorType{
	"none":         ErrorNone,
	"additive":     ErrorAdditive,
	"proportional": ErrorProportional,
	"exponential":  ErrorExponential,
	"mixed":        ErrorMixed,
}

// ParseErrorType maps a configuration name to an ErrorType.
func ParseErrorType(name string) (ErrorType, bool) {
	if name == "" {
		return ErrorNone, true
	}
	t, ok := errorTypeNames[name]
	return t, ok
}

// SigmaResidualErrorModel is the standard sigma-parameterised error model.
// Mixed uses Sigma[0] as the additive and Sigma[1] as the proportional term;
// every other type uses Sigma[0].
type SigmaResidualErrorModel struct {
	Type  ErrorType
	Sigma []float64
}

var _ ResidualErrorModel = (*SigmaResidualErrorModel)(nil)

func (m *SigmaResidualErrorModel) IsEmpty() bool {
	return m == nil || m.Type == ErrorNone || len(m.Sigma) == 0
}

func (m *SigmaResidualErrorModel) NbEpsilons() int {
	if m.IsEmpty() {
		return 0
	}
	return 1
}

func (m *SigmaResidualErrorModel) ApplyEpsToArray(values []float64, eps []float64) {
	if m.IsEmpty() || len(eps) == 0 {
		return
	}
	e := eps[0]
	for i, v := range values {
		switch m.Type {
		case ErrorAdditive:
			values[i] = v + m.Sigma[0]*e
		case ErrorProportional:
			values[i] = v * (1 + m.Sigma[0]*e)
		case ErrorExponential:
			values[i] = v * math.Exp(m.Sigma[0]*e)
		case ErrorMixed:
			values[i] = v + e*math.Sqrt(math.Pow(v*m.sigma(1), 2)+math.Pow(m.Sigma[0], 2))
		}
	}
}

func (m *SigmaResidualErrorModel) sigma(i int) float64 {
	if i < len(m.Sigma) {
		return m.Sigma[i]
	}
	return 0
}

func (m *SigmaResidualErrorModel) SampleLogLikelihood(expected, observed float64) float64 {
	if m.IsEmpty() {
		return 0
	}
	diff := observed - expected
	var sig float64
	switch m.Type {
	case ErrorAdditive:
		sig = m.Sigma[0]
	case ErrorProportional:
		sig = m.Sigma[0] * expected
	case ErrorExponential:
		diff = math.Log(observed) - math.Log(expected)
		sig = m.Sigma[0]
	case ErrorMixed:
		sig = math.Sqrt(math.Pow(expected*m.sigma(1), 2) + math.Pow(m.Sigma[0], 2))
	}
	if sig == 0 {
		if diff == 0 {
			return 0
		}
		return -math.MaxFloat64
	}
	sig = math.Abs(sig)
	ll := -(0.5*math.Log(2*math.Pi) + math.Log(sig) + 0.5*diff*diff/(sig*sig))
	if math.IsNaN(ll) {
		return -math.MaxFloat64
	}
	return ll
}

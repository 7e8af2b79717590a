package sim

import (
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// ConcentrationCalculator simulates concentration profiles over an intake
// series, carrying residuals from one intake to the next.
type ConcentrationCalculator interface {
	// ComputeConcentrations simulates every intake and records the cycles
	// intersecting [recordFrom, recordTo) into prediction. Epsilons are
	// applied to recorded values when the error model is not empty.
	ComputeConcentrations(prediction *ConcentrationPrediction, recordFrom, recordTo time.Time,
		intakes IntakeSeries, parameters *ParameterSetSeries, etas Etas,
		errorModel ResidualErrorModel, epsilons []float64, fixedDensity bool) error

	// ComputeConcentrationsAtTimes returns the predicted concentration at
	// each sample time. Every sample must lie within the intake span.
	ComputeConcentrationsAtTimes(intakes IntakeSeries, parameters *ParameterSetSeries,
		samples SampleSeries, etas Etas) ([]float64, error)
}

// Calculator is the standard ConcentrationCalculator. It holds no state and
// may be shared between goroutines as long as each uses its own intakes.
type Calculator struct{}

var _ ConcentrationCalculator = Calculator{}

// intervalStatus maps a calculator error onto the statuses this package
// reports. StatusDensityError is accepted by the caller.
func intervalStatus(err error) Status {
	switch s := StatusOf(err); s {
	case StatusOk, StatusDensityError, StatusBadParameters:
		return s
	default:
		return StatusFailure
	}
}

// computeIntake runs one intake and returns its output.
func computeIntake(intake *IntakeEvent, parameters *ParameterSetSeries, etas Etas, in Residuals, fixedDensity bool) (IntervalOutput, error) {
	if intake.Calculator == nil {
		return IntervalOutput{}, StatusFailure
	}
	params, err := parameters.AtTime(intake.Time, etas)
	if err != nil {
		return IntervalOutput{}, StatusBadParameters
	}
	if !fixedDensity {
		intake.NbPoints = OddDensity(intake.NbPoints)
	}
	out, err := intake.Calculator.CalculateIntakePoints(intake, params, in, fixedDensity)
	switch intervalStatus(err) {
	case StatusOk:
	case StatusDensityError:
		// TODO: retry with the density the calculator asked for once
		// calculators report it separately from the output length.
		logrus.Debugf("interval calculator changed the density of intake at %s from %d to %d",
			intake.Time.Format(time.RFC3339), intake.NbPoints, len(out.Values))
		intake.NbPoints = len(out.Values)
	case StatusBadParameters:
		return IntervalOutput{}, StatusBadParameters
	default:
		return IntervalOutput{}, StatusFailure
	}
	return out, nil
}

// carry copies out into in, padding with zeros.
func carry(in, out Residuals) {
	n := copy(in, out)
	for i := n; i < len(in); i++ {
		in[i] = 0
	}
}

func (Calculator) ComputeConcentrations(prediction *ConcentrationPrediction, recordFrom, recordTo time.Time,
	intakes IntakeSeries, parameters *ParameterSetSeries, etas Etas,
	errorModel ResidualErrorModel, epsilons []float64, fixedDensity bool) error {

	in := make(Residuals, intakes.ResidualSize())
	for _, intake := range intakes {
		out, err := computeIntake(intake, parameters, etas, in, fixedDensity)
		if err != nil {
			return err
		}
		if intake.Overlaps(recordFrom, recordTo) {
			if errorModel != nil && !errorModel.IsEmpty() && len(epsilons) > 0 {
				errorModel.ApplyEpsToArray(out.Values, epsilons)
			}
			prediction.Append(intake.Time, out.Times, out.Values)
		}
		carry(in, out.Residuals)
	}
	return nil
}

func (Calculator) ComputeConcentrationsAtTimes(intakes IntakeSeries, parameters *ParameterSetSeries,
	samples SampleSeries, etas Etas) ([]float64, error) {

	values := make([]float64, 0, len(samples))
	in := make(Residuals, intakes.ResidualSize())
	s := 0
	for _, intake := range intakes {
		if s >= len(samples) {
			break
		}
		if intake.Calculator == nil {
			return nil, StatusFailure
		}
		params, err := parameters.AtTime(intake.Time, etas)
		if err != nil {
			return nil, StatusBadParameters
		}
		end := intake.End()

		if samples[s].Time.After(end) {
			// Only the residuals are needed from this intake.
			_, out, err := intake.Calculator.CalculateIntakeSinglePoint(intake, params, in, 0)
			if st := intervalStatus(err); st != StatusOk && st != StatusDensityError {
				return nil, st
			}
			carry(in, out)
			continue
		}

		var last Residuals
		for s < len(samples) && !samples[s].Time.Before(intake.Time) && !samples[s].Time.After(end) {
			atHours := samples[s].Time.Sub(intake.Time).Hours()
			v, out, err := intake.Calculator.CalculateIntakeSinglePoint(intake, params, in, atHours)
			if st := intervalStatus(err); st != StatusOk && st != StatusDensityError {
				return nil, st
			}
			values = append(values, v)
			last = out
			s++
		}
		if last == nil {
			// The next sample precedes this intake and can never be placed.
			return nil, StatusFailure
		}
		carry(in, last)
	}
	if len(values) != len(samples) {
		return nil, StatusFailure
	}
	return values, nil
}

// ComputeConcentrationsAtSteadyState repeats the intake series until the
// residuals stop changing (relative change below 1e-4, at most 100 passes)
// and then records one more pass, the profile once the dosing regimen has
// reached steady state. The intakes must describe one dosing cycle.
func ComputeConcentrationsAtSteadyState(prediction *ConcentrationPrediction, intakes IntakeSeries,
	parameters *ParameterSetSeries, etas Etas, fixedDensity bool) error {

	const (
		maxPasses = 100
		tolerance = 1e-4
	)
	in := make(Residuals, intakes.ResidualSize())
	prev := make(Residuals, len(in))
	for pass := 0; pass < maxPasses; pass++ {
		copy(prev, in)
		for _, intake := range intakes {
			out, err := computeIntake(intake, parameters, etas, in, fixedDensity)
			if err != nil {
				return err
			}
			carry(in, out.Residuals)
		}
		converged := true
		for i := range in {
			if math.Abs(in[i]-prev[i]) > tolerance*math.Max(math.Abs(prev[i]), 1) {
				converged = false
				break
			}
		}
		if converged {
			break
		}
		if pass == maxPasses-1 {
			logrus.Warnf("steady state not reached after %d passes", maxPasses)
		}
	}
	for _, intake := range intakes {
		out, err := computeIntake(intake, parameters, etas, in, fixedDensity)
		if err != nil {
			return err
		}
		prediction.Append(intake.Time, out.Times, out.Values)
		carry(in, out.Residuals)
	}
	return nil
}

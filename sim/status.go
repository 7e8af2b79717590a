package sim

import (
	"errors"
	"fmt"
)

// Status is the outcome code of a computation stage. StatusOk is never
// returned as an error; every other value implements error so stages can
// return it directly or wrap it with fmt.Errorf("...: %w", status).
type Status int

const (
	StatusOk Status = iota
	StatusAborted
	StatusBadParameters
	StatusNoParameters
	StatusFailure
	StatusDensityError
	StatusBadOmega
	StatusPercentilesNoValidPrediction
	StatusAposterioriNoSamples
	StatusAposterioriOutOfScopeSamples
	StatusAposterioriNoLikelySample
	StatusAposterioriDegenerateCovariance
	StatusActiveMoietyCalculationError
)

var statusNames = map[Status]string{
	StatusOk:                              "ok",
	StatusAborted:                         "aborted",
	StatusBadParameters:                   "bad parameters",
	StatusNoParameters:                    "no parameters",
	StatusFailure:                         "interval calculation failure",
	StatusDensityError:                    "density error",
	StatusBadOmega:                        "omega is empty or not positive definite",
	StatusPercentilesNoValidPrediction:    "no valid prediction for percentiles",
	StatusAposterioriNoSamples:            "a posteriori percentiles require at least one sample",
	StatusAposterioriOutOfScopeSamples:    "no sample lies within the intake time span",
	StatusAposterioriNoLikelySample:       "no likely sample among importance candidates",
	StatusAposterioriDegenerateCovariance: "a posteriori covariance is degenerate",
	StatusActiveMoietyCalculationError:    "active moiety combination failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Error() string {
	return s.String()
}

// StatusOf extracts the Status carried by err. A nil error is StatusOk and an
// error that carries no Status is reported as StatusFailure.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOk
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusFailure
}

package sim

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// SampleEvent is one observed concentration.
type SampleEvent struct {
	Time   time.Time
	Value  float64
	Unit   string
	Weight float64 // multiplies the sample's contribution to the likelihood
}

// NewSample returns a sample with unit weight.
func NewSample(t time.Time, value float64) SampleEvent {
	return SampleEvent{Time: t, Value: value, Weight: 1}
}

// SampleSeries is a list of samples, kept in time order.
type SampleSeries []SampleEvent

// Sort orders the series by time.
func (s SampleSeries) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

func (e SampleEvent) within(from, to time.Time) bool {
	return !e.Time.Before(from) && !e.Time.After(to)
}

// CountWithin counts samples lying in [from, to].
func (s SampleSeries) CountWithin(from, to time.Time) int {
	n := 0
	for _, e := range s {
		if e.within(from, to) {
			n++
		}
	}
	return n
}

// WithinTreatment returns, in time order, the samples lying in the time span
// of intakes. An empty series yields StatusAposterioriNoSamples and a series
// with no sample in the span yields StatusAposterioriOutOfScopeSamples.
func (s SampleSeries) WithinTreatment(intakes IntakeSeries) (SampleSeries, error) {
	if len(s) == 0 {
		return nil, StatusAposterioriNoSamples
	}
	from, to := intakes.TimeSpan()
	n := s.CountWithin(from, to)
	if n == 0 {
		return nil, StatusAposterioriOutOfScopeSamples
	}
	if n < len(s) {
		logrus.Debugf("ignoring %d samples outside of the treatment", len(s)-n)
	}
	out := make(SampleSeries, 0, n)
	for _, e := range s {
		if e.within(from, to) {
			out = append(out, e)
		}
	}
	out.Sort()
	return out, nil
}

package sim

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/integrate"
)

// ConcentrationPrediction is a simulated profile, one slice per recorded
// cycle. Times are hours from the cycle start.
type ConcentrationPrediction struct {
	Starts []time.Time
	Times  [][]float64
	Values [][]float64
}

// Append records one cycle.
func (p *ConcentrationPrediction) Append(start time.Time, times, values []float64) {
	p.Starts = append(p.Starts, start)
	p.Times = append(p.Times, times)
	p.Values = append(p.Values, values)
}

// Reset drops all cycles, keeping capacity.
func (p *ConcentrationPrediction) Reset() {
	p.Starts = p.Starts[:0]
	p.Times = p.Times[:0]
	p.Values = p.Values[:0]
}

// NbCycles is the number of recorded cycles.
func (p *ConcentrationPrediction) NbCycles() int { return len(p.Values) }

// AUC is the trapezoidal area under the curve of a cycle, in value·hours.
func (p *ConcentrationPrediction) AUC(cycle int) float64 {
	if cycle < 0 || cycle >= len(p.Values) || len(p.Times[cycle]) < 2 {
		return 0
	}
	return integrate.Trapezoidal(p.Times[cycle], p.Values[cycle])
}

// TotalAUC sums AUC over all cycles.
func (p *ConcentrationPrediction) TotalAUC() float64 {
	total := 0.0
	for c := range p.Values {
		total += p.AUC(c)
	}
	return total
}

// WriteTo dumps the profile as "time value" lines with times accumulated
// across cycles. The last point of a cycle coincides with the first point of
// the next one and is skipped.
func (p *ConcentrationPrediction) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	offset := 0.0
	for c, times := range p.Times {
		for i := 0; i+1 < len(times); i++ {
			n, err := fmt.Fprintf(bw, "%g %g\n", times[i]+offset, p.Values[c][i])
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
		if len(times) > 0 {
			offset += times[len(times)-1]
		}
	}
	return written, bw.Flush()
}

// PercentilesPrediction holds values[rank][cycle][point].
type PercentilesPrediction struct {
	ranks  []float64
	times  [][]float64
	values [][][]float64
}

// Init sizes the result for the given ranks and per-cycle times.
func (p *PercentilesPrediction) Init(ranks []float64, times [][]float64) {
	p.ranks = append([]float64(nil), ranks...)
	p.times = times
	p.values = make([][][]float64, len(ranks))
	for r := range ranks {
		p.values[r] = make([][]float64, len(times))
		for c := range times {
			p.values[r][c] = make([]float64, len(times[c]))
		}
	}
}

// Set stores a value. Distinct (rank, cycle, point) cells may be set
// concurrently.
func (p *PercentilesPrediction) Set(rank, cycle, point int, v float64) {
	p.values[rank][cycle][point] = v
}

func (p *PercentilesPrediction) Ranks() []float64 { return p.ranks }

func (p *PercentilesPrediction) Times() [][]float64 { return p.times }

func (p *PercentilesPrediction) Values() [][][]float64 { return p.values }

func (p *PercentilesPrediction) Value(rank, cycle, point int) float64 {
	return p.values[rank][cycle][point]
}

// WriteTo dumps one line per time point: the accumulated time followed by
// the value at each rank. As for ConcentrationPrediction, the last point of
// each cycle is skipped.
func (p *PercentilesPrediction) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var written int64
	offset := 0.0
	for c, times := range p.times {
		for i := 0; i+1 < len(times); i++ {
			n, err := fmt.Fprintf(bw, "%g", times[i]+offset)
			written += int64(n)
			if err != nil {
				return written, err
			}
			for r := range p.ranks {
				n, err = fmt.Fprintf(bw, " %g", p.values[r][c][i])
				written += int64(n)
				if err != nil {
					return written, err
				}
			}
			n, err = fmt.Fprintln(bw)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
		if len(times) > 0 {
			offset += times[len(times)-1]
		}
	}
	return written, bw.Flush()
}

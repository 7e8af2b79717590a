// Package testutil provides shared test infrastructure for the pkmc engine.
// It consolidates the golden dataset of reference profiles, scenario
// builders and assertion helpers used across sim/ and its sub-packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/pkmc/pkmc/sim"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Tests []GoldenTestCase `json:"tests"`
}

// GoldenTestCase is a regular dosing regimen with its expected profile
// metrics, computed independently from the closed-form equations.
type GoldenTestCase struct {
	Model         string             `json:"model"`
	Dose          float64            `json:"dose"`
	IntervalHours float64            `json:"interval_hours"`
	InfusionHours float64            `json:"infusion_hours"`
	NbIntakes     int                `json:"nb_intakes"`
	NbPoints      int                `json:"nb_points"`
	Parameters    map[string]float64 `json:"parameters"`
	Metrics       GoldenMetrics      `json:"metrics"`
}

// GoldenMetrics are measured on the last simulated cycle.
type GoldenMetrics struct {
	LastCycleMax    float64 `json:"last_cycle_max"`
	LastCycleTrough float64 `json:"last_cycle_trough"`
	LastCycleAUC    float64 `json:"last_cycle_auc"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to repo root testdata/
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}

	return &dataset
}

// Intakes builds the regimen of a golden case with calc shared by every intake.
func (tc GoldenTestCase) Intakes(calc sim.IntervalCalculator) sim.IntakeSeries {
	route := sim.Intravascular
	if tc.InfusionHours > 0 {
		route = sim.Infusion
	}
	return sim.NewRegularIntakes(Start, tc.NbIntakes, tc.Dose, "mg", Hours(tc.IntervalHours),
		Hours(tc.InfusionHours), route, tc.NbPoints, calc)
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// Start is the reference time of test regimens.
var Start = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// Hours converts fractional hours to a Duration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

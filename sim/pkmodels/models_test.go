package pkmodels_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkmc/pkmc/sim"
	"github.com/pkmc/pkmc/sim/internal/testutil"
	"github.com/pkmc/pkmc/sim/pkmodels"
)

func paramsAt(t *testing.T, values map[string]float64) *sim.ParameterSetEvent {
	t.Helper()
	p, err := testutil.FixedParameters(values).AtTime(testutil.Start, nil)
	require.NoError(t, err)
	return p
}

func TestGoldenDataset_LastCycleMetrics(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Tests)

	for _, tc := range dataset.Tests {
		t.Run(tc.Model, func(t *testing.T) {
			// GIVEN a regular regimen simulated with the registered model
			calc, err := pkmodels.NewIntervalCalculator(tc.Model)
			require.NoError(t, err)
			intakes := tc.Intakes(calc)
			from, to := intakes.TimeSpan()

			// WHEN the full series is computed
			var pred sim.ConcentrationPrediction
			err = sim.Calculator{}.ComputeConcentrations(&pred, from, to, intakes,
				testutil.FixedParameters(tc.Parameters), nil, nil, nil, false)
			require.NoError(t, err)
			require.Equal(t, tc.NbIntakes, pred.NbCycles())

			// THEN the last cycle matches the reference metrics
			last := pred.Values[pred.NbCycles()-1]
			peak := math.Inf(-1)
			for _, v := range last {
				peak = math.Max(peak, v)
			}
			testutil.AssertFloat64Equal(t, "max", tc.Metrics.LastCycleMax, peak, 1e-9)
			testutil.AssertFloat64Equal(t, "trough", tc.Metrics.LastCycleTrough, last[len(last)-1], 1e-9)
			testutil.AssertFloat64Equal(t, "auc", tc.Metrics.LastCycleAUC, pred.AUC(pred.NbCycles()-1), 1e-9)
		})
	}
}

func TestConstantEliminationBolus_FlatProfile(t *testing.T) {
	calc := pkmodels.NewConstantEliminationBolus()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 200, Interval: testutil.Hours(6), NbPoints: 5, Calculator: calc}

	out, err := calc.CalculateIntakePoints(intake, paramsAt(t, testutil.ConstantEliminationParameters(1000)), sim.Residuals{0}, false)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1.5, 3, 4.5, 6}, out.Times)
	for _, v := range out.Values {
		assert.Equal(t, 200000.0, v)
	}
	assert.Equal(t, sim.Residuals{200000}, out.Residuals)
}

func TestConstantEliminationBolus_ResidualMultiplier(t *testing.T) {
	// GIVEN R=1 so the incoming residual adds to the dose
	calc := pkmodels.NewConstantEliminationBolus()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 10, Interval: testutil.Hours(4), NbPoints: 3, Calculator: calc}
	params := paramsAt(t, map[string]float64{"TestA": 1, "TestM": 2, "TestR": 1, "TestS": 0.1})

	out, err := calc.CalculateIntakePoints(intake, params, sim.Residuals{5}, false)
	require.NoError(t, err)

	// C(t) = (10 + 5)*(1 - 0.1t)*2 + 1
	assert.InDeltaSlice(t, []float64{31, 25, 19}, out.Values, 1e-12)
}

func TestConstantEliminationBolus_NegativeSlopeIsBadParameters(t *testing.T) {
	calc := pkmodels.NewConstantEliminationBolus()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 10, Interval: testutil.Hours(4), NbPoints: 3, Calculator: calc}
	params := paramsAt(t, map[string]float64{"TestA": 0, "TestM": 1, "TestR": 0, "TestS": -1})

	_, err := calc.CalculateIntakePoints(intake, params, sim.Residuals{0}, false)
	assert.ErrorIs(t, err, sim.StatusBadParameters)
}

func TestOneCompartmentBolus_MicroMatchesMacro(t *testing.T) {
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 100, Interval: testutil.Hours(12), NbPoints: 7}

	macro := pkmodels.NewOneCompartmentBolus()
	micro := pkmodels.NewOneCompartmentBolusMicro()
	a, err := macro.CalculateIntakePoints(intake, paramsAt(t, map[string]float64{"CL": 2, "V": 20}), sim.Residuals{1}, false)
	require.NoError(t, err)
	b, err := micro.CalculateIntakePoints(intake, paramsAt(t, map[string]float64{"Ke": 0.1, "V": 20}), sim.Residuals{1}, false)
	require.NoError(t, err)

	assert.InDeltaSlice(t, a.Values, b.Values, 1e-12)
	assert.InDelta(t, 6.0, a.Values[0], 1e-12) // 100/20 + 1
}

func TestOneCompartmentBolus_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]float64
	}{
		{"zero volume", map[string]float64{"CL": 2, "V": 0}},
		{"negative clearance", map[string]float64{"CL": -1, "V": 10}},
		{"NaN clearance", map[string]float64{"CL": math.NaN(), "V": 10}},
		{"missing volume", map[string]float64{"CL": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := pkmodels.NewOneCompartmentBolus()
			intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 100, Interval: testutil.Hours(12), NbPoints: 3}
			_, err := calc.CalculateIntakePoints(intake, paramsAt(t, tt.params), sim.Residuals{0}, false)
			assert.ErrorIs(t, err, sim.StatusBadParameters)
		})
	}
}

func TestAnalytical_SinglePointMatchesProfile(t *testing.T) {
	tests := []struct {
		name   string
		calc   *pkmodels.Analytical
		route  sim.AbsorptionModel
		params map[string]float64
	}{
		{"bolus", pkmodels.NewOneCompartmentBolus(), sim.Intravascular, map[string]float64{"CL": 2, "V": 20}},
		{"infusion", pkmodels.NewOneCompartmentInfusion(), sim.Infusion, map[string]float64{"CL": 5, "V": 50}},
		{"extravascular", pkmodels.NewOneCompartmentExtravascular(), sim.Extravascular, map[string]float64{"CL": 3, "F": 0.8, "Ka": 1, "V": 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 100, Interval: testutil.Hours(8),
				InfusionTime: testutil.Hours(1), Route: tt.route, NbPoints: 9}
			params := paramsAt(t, tt.params)
			in := sim.Residuals{0.5, 0.25}

			out, err := tt.calc.CalculateIntakePoints(intake, params, in, false)
			require.NoError(t, err)

			for i, at := range out.Times {
				v, res, err := tt.calc.CalculateIntakeSinglePoint(intake, params, in, at)
				require.NoError(t, err)
				assert.InDelta(t, out.Values[i], v, 1e-9, "t=%v", at)
				assert.InDeltaSlice(t, out.Residuals, res, 1e-9)
			}
		})
	}
}

func TestOneCompartmentInfusion_ContinuousAtEndOfInfusion(t *testing.T) {
	calc := pkmodels.NewOneCompartmentInfusion()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 500, Interval: testutil.Hours(8),
		InfusionTime: testutil.Hours(2), Route: sim.Infusion, NbPoints: 9}
	params := paramsAt(t, map[string]float64{"CL": 5, "V": 50})

	before, _, err := calc.CalculateIntakeSinglePoint(intake, params, sim.Residuals{0}, 2-1e-9)
	require.NoError(t, err)
	after, _, err := calc.CalculateIntakeSinglePoint(intake, params, sim.Residuals{0}, 2+1e-9)
	require.NoError(t, err)
	start, _, err := calc.CalculateIntakeSinglePoint(intake, params, sim.Residuals{0}, 0)
	require.NoError(t, err)

	assert.InDelta(t, before, after, 1e-6)
	assert.Equal(t, 0.0, start)
}

func TestOneCompartmentInfusion_RequiresInfusionTime(t *testing.T) {
	calc := pkmodels.NewOneCompartmentInfusion()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 500, Interval: testutil.Hours(8), Route: sim.Infusion, NbPoints: 9}

	_, err := calc.CalculateIntakePoints(intake, paramsAt(t, map[string]float64{"CL": 5, "V": 50}), sim.Residuals{0}, false)
	assert.ErrorIs(t, err, sim.StatusBadParameters)
}

func TestOneCompartmentExtravascular_AbsorptionPhase(t *testing.T) {
	calc := pkmodels.NewOneCompartmentExtravascular()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 250, Interval: testutil.Hours(24), Route: sim.Extravascular, NbPoints: 25}

	out, err := calc.CalculateIntakePoints(intake, paramsAt(t, map[string]float64{"CL": 3, "F": 0.8, "Ka": 1, "V": 30}), nil, false)
	require.NoError(t, err)

	// Starts empty, rises, then decays.
	assert.InDelta(t, 0, out.Values[0], 1e-12)
	assert.Greater(t, out.Values[2], out.Values[1])
	assert.Less(t, out.Values[24], out.Values[5])
	assert.Len(t, out.Residuals, 2)
}

func TestAnalytical_DensityErrorStillReturnsProfile(t *testing.T) {
	// GIVEN an intake asking for zero points
	calc := pkmodels.NewOneCompartmentBolus()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 100, Interval: testutil.Hours(12), NbPoints: 0}

	out, err := calc.CalculateIntakePoints(intake, paramsAt(t, map[string]float64{"CL": 2, "V": 20}), sim.Residuals{0}, true)

	// THEN the calculator reports the density it used along with a valid profile
	assert.ErrorIs(t, err, sim.StatusDensityError)
	assert.Len(t, out.Values, 1)
	assert.Equal(t, []float64{12}, out.Times)
}

func TestAnalytical_CachesExponentials(t *testing.T) {
	calc := pkmodels.NewOneCompartmentBolus()
	intake := &sim.IntakeEvent{Time: testutil.Start, Dose: 100, Interval: testutil.Hours(12), NbPoints: 5}
	p1 := paramsAt(t, map[string]float64{"CL": 2, "V": 20})
	p2 := paramsAt(t, map[string]float64{"CL": 3, "V": 20})

	first, err := calc.CalculateIntakePoints(intake, p1, sim.Residuals{0}, false)
	require.NoError(t, err)
	again, err := calc.CalculateIntakePoints(intake, p1, sim.Residuals{0}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, calc.CacheLen())
	assert.Equal(t, first.Values, again.Values)

	_, err = calc.CalculateIntakePoints(intake, p2, sim.Residuals{0}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, calc.CacheLen())

	// A clone starts with its own empty cache.
	clone := calc.Clone().(*pkmodels.Analytical)
	assert.Equal(t, 0, clone.CacheLen())
}

func TestNewIntervalCalculator(t *testing.T) {
	for _, name := range pkmodels.Models() {
		calc, err := sim.NewIntervalCalculator(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, calc.(*pkmodels.Analytical).Name())
	}
	_, err := sim.NewIntervalCalculator("two_compartment_bolus")
	assert.Error(t, err)
}
